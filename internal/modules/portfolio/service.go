package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/domain"
)

// RealizedGainsSource provides realized gain totals from the
// transaction ledger. Implemented by trading.TransactionRepository.
type RealizedGainsSource interface {
	TotalRealizedGains() (float64, error)
	RealizedGainsBySymbol() (map[string]float64, error)
}

// PositionView is one position enriched with derived fields for the
// dashboard.
type PositionView struct {
	ID                    string  `json:"id"`
	Symbol                string  `json:"symbol"`
	Type                  string  `json:"position_type"`
	Quantity              float64 `json:"quantity"`
	CostBasis             float64 `json:"cost_basis"`
	CurrentPrice          float64 `json:"current_price"`
	PositionValue         float64 `json:"position_value"`
	UnrealizedGain        float64 `json:"unrealized_gain"`
	UnrealizedGainPercent float64 `json:"unrealized_gain_percent"`
	PercentChange         float64 `json:"percent_change"`
	Sector                string  `json:"sector"`
	Industry              string  `json:"industry"`
	Beta                  float64 `json:"beta"`
	RealizedGains         float64 `json:"realized_gains"`
	EntryDate             string  `json:"entry_date"`
	LastUpdated           string  `json:"last_updated"`
}

// SectorExposure maps sector name to percentage of the side's gross value
type SectorExposure struct {
	Long  map[string]float64 `json:"long"`
	Short map[string]float64 `json:"short"`
}

// Metadata holds portfolio-level aggregates
type Metadata struct {
	TotalLongValue       float64  `json:"total_long_value"`
	TotalShortValue      float64  `json:"total_short_value"`
	LongShortRatio       *float64 `json:"long_short_ratio"` // nil when there are no shorts
	LongCount            int      `json:"long_count"`
	ShortCount           int      `json:"short_count"`
	LongBeta             float64  `json:"long_beta"`
	ShortBeta            float64  `json:"short_beta"`
	TotalRealizedGains   float64  `json:"total_realized_gains"`
	TotalUnrealizedGains float64  `json:"total_unrealized_gains"`
	LastUpdated          string   `json:"last_updated"`
}

// Summary is the full portfolio snapshot served to the dashboard
type Summary struct {
	Positions      []PositionView `json:"positions"`
	SectorExposure SectorExposure `json:"sector_exposure"`
	Metadata       Metadata       `json:"metadata"`
}

// PortfolioService builds portfolio summaries from stored positions
// and the transaction ledger.
type PortfolioService struct {
	positionRepo *PositionRepository
	gains        RealizedGainsSource
	log          zerolog.Logger
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(positionRepo *PositionRepository, gains RealizedGainsSource, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		positionRepo: positionRepo,
		gains:        gains,
		log:          log.With().Str("service", "portfolio").Logger(),
	}
}

// GetSummary returns the complete portfolio snapshot
func (s *PortfolioService) GetSummary() (*Summary, error) {
	positions, err := s.positionRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	gainsBySymbol, err := s.gains.RealizedGainsBySymbol()
	if err != nil {
		return nil, fmt.Errorf("failed to load realized gains: %w", err)
	}

	totalGains, err := s.gains.TotalRealizedGains()
	if err != nil {
		return nil, fmt.Errorf("failed to load total realized gains: %w", err)
	}

	summary := &Summary{
		Positions: make([]PositionView, 0, len(positions)),
		SectorExposure: SectorExposure{
			Long:  make(map[string]float64),
			Short: make(map[string]float64),
		},
	}

	var (
		longValue, shortValue         float64
		longBetaValue, shortBetaValue float64
		longCount, shortCount         int
		unrealizedGains               float64
		lastUpdated                   time.Time
	)
	longSectors := make(map[string]float64)
	shortSectors := make(map[string]float64)

	for i := range positions {
		pos := &positions[i]
		value := pos.MarketValue()

		summary.Positions = append(summary.Positions, newPositionView(pos, gainsBySymbol[pos.Symbol]))
		unrealizedGains += pos.UnrealizedGain()

		switch pos.Type {
		case domain.PositionShort:
			shortValue += value
			shortBetaValue += pos.BetaWeightedValue()
			shortSectors[pos.Sector] += value
			shortCount++
		default:
			longValue += value
			longBetaValue += pos.BetaWeightedValue()
			longSectors[pos.Sector] += value
			longCount++
		}

		if pos.LastUpdated.After(lastUpdated) {
			lastUpdated = pos.LastUpdated
		}
	}

	// Largest positions first
	sort.Slice(summary.Positions, func(i, j int) bool {
		return summary.Positions[i].PositionValue > summary.Positions[j].PositionValue
	})

	summary.SectorExposure.Long = sectorPercentages(longSectors, longValue)
	summary.SectorExposure.Short = sectorPercentages(shortSectors, shortValue)

	summary.Metadata = Metadata{
		TotalLongValue:       longValue,
		TotalShortValue:      shortValue,
		LongCount:            longCount,
		ShortCount:           shortCount,
		LongBeta:             weightedBeta(longBetaValue, longValue),
		ShortBeta:            weightedBeta(shortBetaValue, shortValue),
		TotalRealizedGains:   totalGains,
		TotalUnrealizedGains: unrealizedGains,
	}
	if shortValue > 0 {
		ratio := longValue / shortValue
		summary.Metadata.LongShortRatio = &ratio
	}
	if !lastUpdated.IsZero() {
		summary.Metadata.LastUpdated = lastUpdated.Format(time.RFC3339)
	}

	return summary, nil
}

func newPositionView(pos *domain.Position, realizedGains float64) PositionView {
	return PositionView{
		ID:                    pos.ID,
		Symbol:                pos.Symbol,
		Type:                  string(pos.Type),
		Quantity:              pos.Quantity,
		CostBasis:             pos.CostBasis,
		CurrentPrice:          pos.CurrentPrice,
		PositionValue:         pos.MarketValue(),
		UnrealizedGain:        pos.UnrealizedGain(),
		UnrealizedGainPercent: pos.UnrealizedGainPercent(),
		PercentChange:         pos.UnrealizedGainPercent(),
		Sector:                pos.Sector,
		Industry:              pos.Industry,
		Beta:                  pos.Beta,
		RealizedGains:         realizedGains,
		EntryDate:             pos.EntryDate.Format(time.RFC3339),
		LastUpdated:           pos.LastUpdated.Format(time.RFC3339),
	}
}

// sectorPercentages converts per-sector gross values into percentages
// of the side's total gross value.
func sectorPercentages(sectors map[string]float64, total float64) map[string]float64 {
	result := make(map[string]float64, len(sectors))
	if total <= 0 {
		return result
	}
	for sector, value := range sectors {
		result[sector] = value / total * 100
	}
	return result
}

func weightedBeta(betaValue, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return betaValue / total
}
