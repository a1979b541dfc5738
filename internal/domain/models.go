// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PositionType represents the side of a position
type PositionType string

const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
)

// TransactionType represents the kind of executed transaction
type TransactionType string

const (
	TransactionBuy   TransactionType = "buy"
	TransactionSell  TransactionType = "sell"
	TransactionShort TransactionType = "short"
	TransactionCover TransactionType = "cover"
)

// ValidTransactionType reports whether t is one of the four supported kinds
func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionShort, TransactionCover:
		return true
	}
	return false
}

// Beta bounds. Values outside this range are almost always data errors
// from the upstream provider, so they are clamped on ingest.
const (
	BetaMin     = -1.0
	BetaMax     = 5.0
	BetaDefault = 1.0
)

// ClampBeta forces a beta value into the accepted range
func ClampBeta(beta float64) float64 {
	if beta < BetaMin {
		return BetaMin
	}
	if beta > BetaMax {
		return BetaMax
	}
	return beta
}

// Position represents an open portfolio position on one side of a symbol.
// CostBasis is the weighted average entry price across all fills.
type Position struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	Type         PositionType `json:"position_type"`
	Quantity     float64      `json:"quantity"`
	CostBasis    float64      `json:"cost_basis"`
	CurrentPrice float64      `json:"current_price"`
	Sector       string       `json:"sector"`
	Industry     string       `json:"industry"`
	Beta         float64      `json:"beta"`
	EntryDate    time.Time    `json:"entry_date"`
	LastUpdated  time.Time    `json:"last_updated"`
}

// NewPositionID generates a position identifier of the form POS_xxxxxxxx
func NewPositionID() string {
	return "POS_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// MarketValue returns the absolute market value of the position.
// Short positions report positive value so that exposure sums work
// on gross values per side.
func (p *Position) MarketValue() float64 {
	v := p.Quantity * p.CurrentPrice
	if v < 0 {
		return -v
	}
	return v
}

// UnrealizedGain returns the open profit or loss of the position.
// For shorts the sign flips: price dropping below basis is a gain.
func (p *Position) UnrealizedGain() float64 {
	if p.Type == PositionShort {
		return (p.CostBasis - p.CurrentPrice) * p.Quantity
	}
	return (p.CurrentPrice - p.CostBasis) * p.Quantity
}

// UnrealizedGainPercent returns the open profit or loss as a percentage
// of the cost basis, sign-adjusted for shorts.
func (p *Position) UnrealizedGainPercent() float64 {
	if p.CostBasis == 0 {
		return 0
	}
	pct := (p.CurrentPrice - p.CostBasis) / p.CostBasis * 100
	if p.Type == PositionShort {
		return -pct
	}
	return pct
}

// BetaWeightedValue returns market value scaled by beta, used for
// portfolio-level beta exposure.
func (p *Position) BetaWeightedValue() float64 {
	return p.MarketValue() * p.Beta
}

// Validate checks position fields for consistency
func (p *Position) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if p.Type != PositionLong && p.Type != PositionShort {
		return fmt.Errorf("%w: unknown position type %q", ErrInvalidInput, p.Type)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidInput, p.Quantity)
	}
	if p.CostBasis <= 0 {
		return fmt.Errorf("%w: cost basis must be positive, got %v", ErrInvalidInput, p.CostBasis)
	}
	return nil
}

// Transaction represents one executed trade in the ledger.
// RealizedGain is set only on closing trades (sell, cover).
type Transaction struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Type         TransactionType `json:"type"`
	Quantity     float64         `json:"quantity"`
	Price        float64         `json:"price"`
	Date         time.Time       `json:"date"`
	RealizedGain *float64        `json:"realized_gain,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewTransactionID generates a transaction identifier
func NewTransactionID() string {
	return uuid.NewString()
}

// Total returns the gross cash amount of the transaction
func (t *Transaction) Total() float64 {
	return t.Quantity * t.Price
}

// Validate checks transaction fields for consistency
func (t *Transaction) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if !ValidTransactionType(t.Type) {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidInput, t.Type)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidInput, t.Quantity)
	}
	if t.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidInput, t.Price)
	}
	return nil
}

// IsClosing reports whether this transaction reduces an open position
func (t *Transaction) IsClosing() bool {
	return t.Type == TransactionSell || t.Type == TransactionCover
}

// Quote holds the latest price snapshot for a symbol
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	PreviousClose float64   `json:"previous_close"`
	Timestamp     time.Time `json:"timestamp"`
}

// CompanyInfo holds slow-moving reference data for a symbol.
// Sector and Industry default to "Unknown" and Beta to 1.0 when the
// provider has no coverage for the symbol.
type CompanyInfo struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
	Beta        float64 `json:"beta"`
	MarketCap   int64   `json:"market_cap"`
	Description string  `json:"description,omitempty"`
}

// StockInfo combines quote and company data for the stock detail endpoint
type StockInfo struct {
	Quote   Quote       `json:"quote"`
	Company CompanyInfo `json:"company"`
}

// SearchResult is one match from the symbol search endpoint
type SearchResult struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Region   string  `json:"region"`
	Currency string  `json:"currency"`
	Score    float64 `json:"match_score"`
}

// MarketStatus reports whether US equity markets are currently trading
type MarketStatus struct {
	Open        bool      `json:"open"`
	Status      string    `json:"status"` // "open" or "closed"
	LastUpdated time.Time `json:"last_updated"`
}

// NewsArticle is one news item about a symbol, with the provider's
// sentiment classification.
type NewsArticle struct {
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	Summary        string    `json:"summary,omitempty"`
	BannerImage    string    `json:"banner_image,omitempty"`
	Published      time.Time `json:"published"`
	Sentiment      string    `json:"sentiment,omitempty"`
	SentimentScore float64   `json:"sentiment_score"`
}
