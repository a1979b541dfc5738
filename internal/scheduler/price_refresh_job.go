package scheduler

import (
	"github.com/rs/zerolog"

	"folio/internal/domain"
	"folio/internal/modules/trading"
)

// MarketClock reports whether markets are trading. Implemented by
// market.Service.
type MarketClock interface {
	MarketStatus() domain.MarketStatus
}

// PriceRefresher updates stored position prices. Implemented by
// trading.Service.
type PriceRefresher interface {
	RefreshPrices() (*trading.RefreshResult, error)
}

// PriceRefreshJob refreshes position prices while markets are open.
// Outside trading hours the job is a no-op, preserving the provider's
// daily request budget.
type PriceRefreshJob struct {
	refresher PriceRefresher
	clock     MarketClock
	log       zerolog.Logger
}

// NewPriceRefreshJob creates a new price refresh job
func NewPriceRefreshJob(refresher PriceRefresher, clock MarketClock, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		refresher: refresher,
		clock:     clock,
		log:       log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string { return "price_refresh" }

// Run refreshes prices when markets are open
func (j *PriceRefreshJob) Run() error {
	if !j.clock.MarketStatus().Open {
		j.log.Debug().Msg("Market closed, skipping refresh")
		return nil
	}

	result, err := j.refresher.RefreshPrices()
	if err != nil {
		return err
	}

	j.log.Info().
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("Prices refreshed")
	return nil
}
