package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/database"
	"folio/internal/domain"
	"folio/internal/events"
)

// StockDataProvider supplies market data for trade enrichment and
// price refreshes. Implemented by market.Service.
type StockDataProvider interface {
	GetQuotes(symbols []string) (map[string]domain.Quote, error)
	GetCompanyInfo(symbol string) (*domain.CompanyInfo, error)
}

// TradeRequest describes one buy/sell/short/cover order
type TradeRequest struct {
	Symbol   string
	Quantity float64
	Price    float64
	Date     time.Time
}

// Validate checks the request fields
func (req *TradeRequest) Validate() error {
	if strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	}
	if req.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", domain.ErrInvalidInput)
	}
	return nil
}

// TradeResult is the outcome of an executed trade. The closing fields
// are populated for sells and covers only.
type TradeResult struct {
	Transaction        *domain.Transaction `json:"transaction"`
	RealizedGain       *float64            `json:"realized_gain,omitempty"`
	RemainingShares    *float64            `json:"remaining_shares,omitempty"`
	TotalRealizedGains *float64            `json:"total_realized_gains,omitempty"`
}

// RefreshResult reports the outcome of a price refresh
type RefreshResult struct {
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Missing []string `json:"missing,omitempty"`
}

// Service executes trades against positions and the transaction ledger
type Service struct {
	db           *sql.DB
	positionRepo PositionStore
	txRepo       *TransactionRepository
	provider     StockDataProvider
	bus          *events.Bus
	log          zerolog.Logger
}

// PositionStore is the position persistence surface the trading
// service needs.
type PositionStore interface {
	GetAll() ([]domain.Position, error)
	GetBySymbolAndType(symbol string, posType domain.PositionType) (*domain.Position, error)
	SaveTx(tx *sql.Tx, pos *domain.Position) error
	DeleteTx(tx *sql.Tx, id string) error
	UpdatePrice(id string, price float64) error
	UpdateMarketData(id string, price float64, sector, industry string, beta float64) error
	Symbols() ([]string, error)
}

// NewService creates a new trading service
func NewService(
	db *sql.DB,
	positionRepo PositionStore,
	txRepo *TransactionRepository,
	provider StockDataProvider,
	bus *events.Bus,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:           db,
		positionRepo: positionRepo,
		txRepo:       txRepo,
		provider:     provider,
		bus:          bus,
		log:          log.With().Str("service", "trading").Logger(),
	}
}

// Buy opens or extends a long position at the given price. Multiple
// buys merge into one position with a weighted average cost basis.
func (s *Service) Buy(req TradeRequest) (*TradeResult, error) {
	return s.openTrade(req, domain.PositionLong, domain.TransactionBuy)
}

// Short opens or extends a short position. Cost basis averages the
// same way as buys.
func (s *Service) Short(req TradeRequest) (*TradeResult, error) {
	return s.openTrade(req, domain.PositionShort, domain.TransactionShort)
}

// Sell closes part or all of a long position and realizes
// (price - basis) * quantity.
func (s *Service) Sell(req TradeRequest) (*TradeResult, error) {
	return s.closeTrade(req, domain.PositionLong, domain.TransactionSell)
}

// Cover closes part or all of a short position and realizes
// (basis - price) * quantity.
func (s *Service) Cover(req TradeRequest) (*TradeResult, error) {
	return s.closeTrade(req, domain.PositionShort, domain.TransactionCover)
}

func (s *Service) openTrade(req TradeRequest, posType domain.PositionType, txType domain.TransactionType) (*TradeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := normalizeSymbol(req.Symbol)
	now := time.Now().UTC()
	date := req.Date
	if date.IsZero() {
		date = now
	}

	existing, err := s.positionRepo.GetBySymbolAndType(symbol, posType)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	var pos *domain.Position
	if existing != nil {
		// Weighted average cost basis across fills
		totalQty := existing.Quantity + req.Quantity
		existing.CostBasis = (existing.CostBasis*existing.Quantity + req.Price*req.Quantity) / totalQty
		existing.Quantity = totalQty
		existing.CurrentPrice = req.Price
		existing.LastUpdated = now
		pos = existing
	} else {
		pos = &domain.Position{
			ID:           domain.NewPositionID(),
			Symbol:       symbol,
			Type:         posType,
			Quantity:     req.Quantity,
			CostBasis:    req.Price,
			CurrentPrice: req.Price,
			Sector:       "Unknown",
			Industry:     "Unknown",
			Beta:         domain.BetaDefault,
			EntryDate:    date,
			LastUpdated:  now,
		}
		s.enrichPosition(pos)
	}

	transaction := &domain.Transaction{
		ID:        domain.NewTransactionID(),
		Symbol:    symbol,
		Type:      txType,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Date:      date,
		CreatedAt: now,
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if err := s.positionRepo.SaveTx(tx, pos); err != nil {
			return err
		}
		return s.txRepo.InsertTx(tx, transaction)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("symbol", symbol).
		Str("type", string(txType)).
		Float64("quantity", req.Quantity).
		Float64("price", req.Price).
		Msg("Trade executed")

	s.publishTrade(transaction)
	return &TradeResult{Transaction: transaction}, nil
}

func (s *Service) closeTrade(req TradeRequest, posType domain.PositionType, txType domain.TransactionType) (*TradeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := normalizeSymbol(req.Symbol)
	now := time.Now().UTC()
	date := req.Date
	if date.IsZero() {
		date = now
	}

	pos, err := s.positionRepo.GetBySymbolAndType(symbol, posType)
	if err != nil {
		return nil, err
	}

	if req.Quantity > pos.Quantity {
		return nil, fmt.Errorf("%w: have %v, tried to close %v %s",
			domain.ErrInsufficientShares, pos.Quantity, req.Quantity, symbol)
	}

	var realized float64
	if txType == domain.TransactionCover {
		realized = (pos.CostBasis - req.Price) * req.Quantity
	} else {
		realized = (req.Price - pos.CostBasis) * req.Quantity
	}

	transaction := &domain.Transaction{
		ID:           domain.NewTransactionID(),
		Symbol:       symbol,
		Type:         txType,
		Quantity:     req.Quantity,
		Price:        req.Price,
		Date:         date,
		RealizedGain: &realized,
		CreatedAt:    now,
	}

	remaining := pos.Quantity - req.Quantity

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		if remaining == 0 {
			if err := s.positionRepo.DeleteTx(tx, pos.ID); err != nil {
				return err
			}
		} else {
			pos.Quantity = remaining
			pos.CurrentPrice = req.Price
			pos.LastUpdated = now
			if err := s.positionRepo.SaveTx(tx, pos); err != nil {
				return err
			}
		}
		return s.txRepo.InsertTx(tx, transaction)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("symbol", symbol).
		Str("type", string(txType)).
		Float64("quantity", req.Quantity).
		Float64("realized_gain", realized).
		Msg("Trade executed")

	totalRealized, err := s.txRepo.RealizedGainsForSymbol(symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load running gain total")
		totalRealized = realized
	}

	s.publishTrade(transaction)
	return &TradeResult{
		Transaction:        transaction,
		RealizedGain:       &realized,
		RemainingShares:    &remaining,
		TotalRealizedGains: &totalRealized,
	}, nil
}

// enrichPosition fills sector, industry, and beta from the provider.
// Provider failures leave the defaults in place; a trade never fails
// because reference data is unavailable.
func (s *Service) enrichPosition(pos *domain.Position) {
	if s.provider == nil {
		return
	}

	info, err := s.provider.GetCompanyInfo(pos.Symbol)
	if err != nil || info == nil {
		s.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Company info unavailable, using defaults")
		return
	}

	if info.Sector != "" && info.Sector != "None" {
		pos.Sector = info.Sector
	}
	if info.Industry != "" && info.Industry != "None" {
		pos.Industry = info.Industry
	}
	if info.Beta != 0 {
		pos.Beta = domain.ClampBeta(info.Beta)
	}
}

// RefreshPrices pulls current quotes for every open position and
// updates stored prices.
func (s *Service) RefreshPrices() (*RefreshResult, error) {
	symbols, err := s.positionRepo.Symbols()
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{}
	if len(symbols) == 0 {
		return result, nil
	}

	if s.provider == nil {
		return nil, domain.ErrProviderUnavailable
	}

	quotes, err := s.provider.GetQuotes(symbols)
	if err != nil {
		return nil, err
	}

	positions, err := s.positionRepo.GetAll()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for i := range positions {
		pos := &positions[i]
		quote, ok := quotes[pos.Symbol]
		if !ok || quote.Price <= 0 {
			if !seen[pos.Symbol] {
				result.Missing = append(result.Missing, pos.Symbol)
				seen[pos.Symbol] = true
			}
			result.Failed++
			continue
		}

		// Positions opened while the provider was down carry default
		// reference data; repair it alongside the price update.
		if pos.Sector == "Unknown" && s.repairReferenceData(pos, quote.Price) {
			result.Updated++
			continue
		}

		if err := s.positionRepo.UpdatePrice(pos.ID, quote.Price); err != nil {
			s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to update price")
			result.Failed++
			continue
		}
		result.Updated++
	}

	s.log.Info().
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("Price refresh completed")

	if s.bus != nil {
		s.bus.Publish(events.PricesRefreshed, "trading", &events.PricesRefreshedData{
			Updated: result.Updated,
			Failed:  result.Failed,
		})
		if result.Updated > 0 {
			s.bus.Publish(events.PortfolioChanged, "trading", &events.PortfolioChangedData{Reason: "refresh"})
		}
	}

	return result, nil
}

// repairReferenceData replaces default sector, industry, and beta with
// provider data together with the new price. Returns false when the
// provider has nothing better, leaving the plain price update to run.
func (s *Service) repairReferenceData(pos *domain.Position, price float64) bool {
	info, err := s.provider.GetCompanyInfo(pos.Symbol)
	if err != nil || info == nil {
		return false
	}
	if info.Sector == "" || info.Sector == "None" || info.Sector == "Unknown" {
		return false
	}

	industry := pos.Industry
	if info.Industry != "" && info.Industry != "None" {
		industry = info.Industry
	}
	beta := pos.Beta
	if info.Beta != 0 {
		beta = domain.ClampBeta(info.Beta)
	}

	if err := s.positionRepo.UpdateMarketData(pos.ID, price, info.Sector, industry, beta); err != nil {
		s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to update market data")
		return false
	}

	s.log.Info().Str("symbol", pos.Symbol).Str("sector", info.Sector).Msg("Repaired reference data")
	return true
}

// History returns transactions matching the filter
func (s *Service) History(filter TransactionFilter) ([]domain.Transaction, error) {
	return s.txRepo.List(filter)
}

func (s *Service) publishTrade(tx *domain.Transaction) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.TradeExecuted, "trading", &events.TradeExecutedData{
		Symbol:       tx.Symbol,
		Type:         string(tx.Type),
		Quantity:     tx.Quantity,
		Price:        tx.Price,
		RealizedGain: tx.RealizedGain,
	})
	s.bus.Publish(events.PortfolioChanged, "trading", &events.PortfolioChangedData{Reason: "trade"})
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrPositionNotFound)
}
