// Package analytics computes portfolio risk and performance metrics
// from open positions and the closed-trade history.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"folio/internal/domain"
)

const (
	// Annual risk-free rate used for the Sharpe ratio
	riskFreeRate = 0.02

	// US equity trading days per year
	tradingDaysPerYear = 252

	// Positions reported in the concentration breakdown
	topPositionCount = 5
)

// PositionSource provides the open positions used for exposure metrics
type PositionSource interface {
	GetAll() ([]domain.Position, error)
}

// TradeSource provides closed trades used for performance metrics
type TradeSource interface {
	ClosingTrades() ([]domain.Transaction, error)
}

// ExposureMetrics describes beta-weighted and concentration risk of
// the open book.
type ExposureMetrics struct {
	GrossExposure     float64 `json:"gross_exposure"`
	NetExposure       float64 `json:"net_exposure"`
	LongBetaExposure  float64 `json:"long_beta_exposure"`
	ShortBetaExposure float64 `json:"short_beta_exposure"`
	NetBetaExposure   float64 `json:"net_beta_exposure"`

	LargestPositionSymbol  string  `json:"largest_position_symbol,omitempty"`
	LargestPositionPercent float64 `json:"largest_position_percent"`
	LargestSector          string  `json:"largest_sector,omitempty"`
	LargestSectorPercent   float64 `json:"largest_sector_percent"`

	SectorConcentration map[string]float64 `json:"sector_concentration"`
	TopPositions        []PositionWeight   `json:"top_positions"`
	HerfindahlIndex     float64            `json:"herfindahl_index"`

	PositionCount int `json:"position_count"`
}

// PositionWeight is a position's share of gross exposure
type PositionWeight struct {
	Symbol  string  `json:"symbol"`
	Percent float64 `json:"percent"`
}

// PerformanceMetrics describes realized trading performance
type PerformanceMetrics struct {
	TotalTrades   int                `json:"total_trades"`
	WinningTrades int                `json:"winning_trades"`
	LosingTrades  int                `json:"losing_trades"`
	WinRate       float64            `json:"win_rate"`
	AverageWin    float64            `json:"average_win"`
	AverageLoss   float64            `json:"average_loss"`
	ProfitFactor  float64            `json:"profit_factor"`
	TotalRealized float64            `json:"total_realized"`
	SharpeRatio   float64            `json:"sharpe_ratio"`
	DailyPnL      map[string]float64 `json:"daily_pnl"`
}

// Service computes analytics over positions and trade history
type Service struct {
	positions PositionSource
	trades    TradeSource
	log       zerolog.Logger
}

// NewService creates a new analytics service
func NewService(positions PositionSource, trades TradeSource, log zerolog.Logger) *Service {
	return &Service{
		positions: positions,
		trades:    trades,
		log:       log.With().Str("module", "analytics").Logger(),
	}
}

// Exposure computes beta-weighted exposure and concentration metrics
// for the open positions. Percentages are relative to gross exposure.
func (s *Service) Exposure() (*ExposureMetrics, error) {
	positions, err := s.positions.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	metrics := &ExposureMetrics{
		PositionCount:       len(positions),
		SectorConcentration: make(map[string]float64),
		TopPositions:        []PositionWeight{},
	}
	sectorValues := make(map[string]float64)
	weights := make([]PositionWeight, 0, len(positions))

	var largestValue float64
	for i := range positions {
		p := &positions[i]
		value := p.MarketValue()
		weighted := p.BetaWeightedValue()

		metrics.GrossExposure += value
		sectorValues[p.Sector] += value
		weights = append(weights, PositionWeight{Symbol: p.Symbol, Percent: value})

		if p.Type == domain.PositionShort {
			metrics.NetExposure -= value
			metrics.ShortBetaExposure += weighted
		} else {
			metrics.NetExposure += value
			metrics.LongBetaExposure += weighted
		}

		if value > largestValue {
			largestValue = value
			metrics.LargestPositionSymbol = p.Symbol
		}
	}

	metrics.NetBetaExposure = metrics.LongBetaExposure - metrics.ShortBetaExposure

	if metrics.GrossExposure > 0 {
		metrics.LargestPositionPercent = largestValue / metrics.GrossExposure * 100

		var largestSectorValue float64
		for sector, value := range sectorValues {
			metrics.SectorConcentration[sector] = value / metrics.GrossExposure * 100
			if value > largestSectorValue {
				largestSectorValue = value
				metrics.LargestSector = sector
			}
		}
		metrics.LargestSectorPercent = largestSectorValue / metrics.GrossExposure * 100

		// Convert raw values into percent weights, largest first
		for i := range weights {
			w := weights[i].Percent / metrics.GrossExposure
			weights[i].Percent = w * 100
			metrics.HerfindahlIndex += w * w
		}
		sort.Slice(weights, func(i, j int) bool {
			if weights[i].Percent != weights[j].Percent {
				return weights[i].Percent > weights[j].Percent
			}
			return weights[i].Symbol < weights[j].Symbol
		})
		if len(weights) > topPositionCount {
			weights = weights[:topPositionCount]
		}
		metrics.TopPositions = weights
	}

	return metrics, nil
}

// Performance computes win rate and risk-adjusted return metrics from
// closed trades. Trades without a recorded gain are skipped. Zero
// bounds leave that side of the date range open.
func (s *Service) Performance(from, to time.Time) (*PerformanceMetrics, error) {
	trades, err := s.trades.ClosingTrades()
	if err != nil {
		return nil, fmt.Errorf("failed to load closed trades: %w", err)
	}

	metrics := &PerformanceMetrics{DailyPnL: make(map[string]float64)}
	var totalWins, totalLosses float64

	for i := range trades {
		t := &trades[i]
		if t.RealizedGain == nil {
			continue
		}
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		if !to.IsZero() && t.Date.After(to) {
			continue
		}
		gain := *t.RealizedGain

		metrics.DailyPnL[t.Date.Format("2006-01-02")] += gain

		metrics.TotalTrades++
		metrics.TotalRealized += gain

		switch {
		case gain > 0:
			metrics.WinningTrades++
			totalWins += gain
		case gain < 0:
			metrics.LosingTrades++
			totalLosses += -gain
		}
	}

	if metrics.TotalTrades > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades) * 100
	}
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = totalWins / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = totalLosses / float64(metrics.LosingTrades)
	}
	if totalLosses > 0 {
		metrics.ProfitFactor = totalWins / totalLosses
	}

	daily := make([]float64, 0, len(metrics.DailyPnL))
	for _, pnl := range metrics.DailyPnL {
		daily = append(daily, pnl)
	}
	metrics.SharpeRatio = sharpeRatio(daily)

	return metrics, nil
}

// sharpeRatio computes an annualized Sharpe ratio over the daily P&L
// series. Zero when fewer than two daily observations exist or the
// series has no variance.
func sharpeRatio(daily []float64) float64 {
	if len(daily) < 2 {
		return 0
	}

	mean := stat.Mean(daily, nil)
	stddev := stat.StdDev(daily, nil)
	if stddev == 0 {
		return 0
	}

	excess := mean - riskFreeRate/tradingDaysPerYear
	return excess / stddev * math.Sqrt(tradingDaysPerYear)
}
