package trading

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/database"
	"folio/internal/domain"
	"folio/internal/events"
	"folio/internal/modules/portfolio"
)

// mockProvider is a hand-written StockDataProvider stub
type mockProvider struct {
	quotes      map[string]domain.Quote
	companyInfo map[string]*domain.CompanyInfo
	quotesErr   error
	infoErr     error
}

func (m *mockProvider) GetQuotes(symbols []string) (map[string]domain.Quote, error) {
	if m.quotesErr != nil {
		return nil, m.quotesErr
	}
	return m.quotes, nil
}

func (m *mockProvider) GetCompanyInfo(symbol string) (*domain.CompanyInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	if info, ok := m.companyInfo[symbol]; ok {
		return info, nil
	}
	return nil, m.infoErr
}

type testEnv struct {
	svc     *Service
	posRepo *portfolio.PositionRepository
	txRepo  *TransactionRepository
	bus     *events.Bus
}

func setupService(t *testing.T, provider StockDataProvider) *testEnv {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "portfolio.db"),
		Name: "portfolio",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	posRepo := portfolio.NewPositionRepository(db.Conn(), log)
	txRepo := NewTransactionRepository(db.Conn(), log)
	bus := events.NewBus(log)

	return &testEnv{
		svc:     NewService(db.Conn(), posRepo, txRepo, provider, bus, log),
		posRepo: posRepo,
		txRepo:  txRepo,
		bus:     bus,
	}
}

func TestBuyOpensPosition(t *testing.T) {
	provider := &mockProvider{
		companyInfo: map[string]*domain.CompanyInfo{
			"AAPL": {Symbol: "AAPL", Sector: "Technology", Industry: "Consumer Electronics", Beta: 1.25},
		},
	}
	env := setupService(t, provider)

	res, err := env.svc.Buy(TradeRequest{Symbol: "aapl", Quantity: 10, Price: 150})
	require.NoError(t, err)

	tx := res.Transaction
	assert.Equal(t, "AAPL", tx.Symbol)
	assert.Equal(t, domain.TransactionBuy, tx.Type)
	assert.Nil(t, tx.RealizedGain)
	assert.Nil(t, res.RemainingShares)
	assert.Nil(t, res.TotalRealizedGains)

	pos, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Quantity)
	assert.Equal(t, 150.0, pos.CostBasis)
	assert.Equal(t, "Technology", pos.Sector)
	assert.Equal(t, 1.25, pos.Beta)
	assert.True(t, len(pos.ID) == 12 && pos.ID[:4] == "POS_")
}

func TestBuyMergesWithWeightedAverage(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)
	_, err = env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 200})
	require.NoError(t, err)

	pos, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, 20.0, pos.Quantity)
	assert.InDelta(t, 150.0, pos.CostBasis, 1e-9)
}

func TestBuyWithProviderFailureUsesDefaults(t *testing.T) {
	env := setupService(t, &mockProvider{infoErr: assert.AnError})

	_, err := env.svc.Buy(TradeRequest{Symbol: "NEWCO", Quantity: 5, Price: 20})
	require.NoError(t, err)

	pos, err := env.posRepo.GetBySymbolAndType("NEWCO", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", pos.Sector)
	assert.Equal(t, "Unknown", pos.Industry)
	assert.Equal(t, domain.BetaDefault, pos.Beta)
}

func TestSellRealizesGainAndReducesPosition(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)

	res, err := env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 4, Price: 120})
	require.NoError(t, err)

	require.NotNil(t, res.Transaction.RealizedGain)
	assert.InDelta(t, 80.0, *res.Transaction.RealizedGain, 1e-9) // (120-100)*4

	require.NotNil(t, res.RealizedGain)
	assert.InDelta(t, 80.0, *res.RealizedGain, 1e-9)
	require.NotNil(t, res.RemainingShares)
	assert.Equal(t, 6.0, *res.RemainingShares)
	require.NotNil(t, res.TotalRealizedGains)
	assert.InDelta(t, 80.0, *res.TotalRealizedGains, 1e-9)

	pos, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, 6.0, pos.Quantity)
	assert.Equal(t, 100.0, pos.CostBasis) // basis unchanged by sells
}

func TestSellRunningTotalAccumulates(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)

	_, err = env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 5, Price: 120})
	require.NoError(t, err)

	res, err := env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 5, Price: 90})
	require.NoError(t, err)

	require.NotNil(t, res.TotalRealizedGains)
	assert.InDelta(t, 50.0, *res.TotalRealizedGains, 1e-9) // +100 - 50
	require.NotNil(t, res.RemainingShares)
	assert.Zero(t, *res.RemainingShares)
}

func TestSellFullPositionRemovesIt(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)

	_, err = env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 90})
	require.NoError(t, err)

	_, err = env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestSellMoreThanHeldFails(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)

	_, err = env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 11, Price: 100})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	// Position untouched
	pos, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Quantity)
}

func TestSellWithoutPositionFails(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Sell(TradeRequest{Symbol: "GHOST", Quantity: 1, Price: 10})
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestShortAndCoverFlipGainSign(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Short(TradeRequest{Symbol: "TSLA", Quantity: 5, Price: 200})
	require.NoError(t, err)

	// Price dropped: covering below basis is a gain
	res, err := env.svc.Cover(TradeRequest{Symbol: "TSLA", Quantity: 5, Price: 180})
	require.NoError(t, err)

	require.NotNil(t, res.Transaction.RealizedGain)
	assert.InDelta(t, 100.0, *res.Transaction.RealizedGain, 1e-9) // (200-180)*5
	require.NotNil(t, res.TotalRealizedGains)
	assert.InDelta(t, 100.0, *res.TotalRealizedGains, 1e-9)
}

func TestShortAndLongCoexistForSameSymbol(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)
	_, err = env.svc.Short(TradeRequest{Symbol: "AAPL", Quantity: 3, Price: 105})
	require.NoError(t, err)

	long, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	require.NoError(t, err)
	short, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionShort)
	require.NoError(t, err)

	assert.Equal(t, 10.0, long.Quantity)
	assert.Equal(t, 3.0, short.Quantity)
	assert.NotEqual(t, long.ID, short.ID)
}

func TestCoverMoreThanShortedFails(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Short(TradeRequest{Symbol: "TSLA", Quantity: 5, Price: 200})
	require.NoError(t, err)

	_, err = env.svc.Cover(TradeRequest{Symbol: "TSLA", Quantity: 6, Price: 190})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestTradeValidation(t *testing.T) {
	env := setupService(t, &mockProvider{})

	tests := []struct {
		name string
		req  TradeRequest
	}{
		{"empty symbol", TradeRequest{Symbol: " ", Quantity: 1, Price: 10}},
		{"zero quantity", TradeRequest{Symbol: "AAPL", Quantity: 0, Price: 10}},
		{"negative price", TradeRequest{Symbol: "AAPL", Quantity: 1, Price: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Buy(tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestBuyPublishesEvents(t *testing.T) {
	env := setupService(t, &mockProvider{})

	var tradeEvents, changeEvents int
	env.bus.Subscribe(events.TradeExecuted, func(*events.Event) { tradeEvents++ })
	env.bus.Subscribe(events.PortfolioChanged, func(*events.Event) { changeEvents++ })

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 1, Price: 100})
	require.NoError(t, err)

	assert.Equal(t, 1, tradeEvents)
	assert.Equal(t, 1, changeEvents)
}

func TestRefreshPrices(t *testing.T) {
	provider := &mockProvider{
		quotes: map[string]domain.Quote{
			"AAPL": {Symbol: "AAPL", Price: 175.5},
		},
	}
	env := setupService(t, provider)

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 150})
	require.NoError(t, err)
	_, err = env.svc.Buy(TradeRequest{Symbol: "MSFT", Quantity: 5, Price: 300})
	require.NoError(t, err)

	result, err := env.svc.RefreshPrices()
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"MSFT"}, result.Missing)

	pos, err := env.posRepo.GetBySymbolAndType("AAPL", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, 175.5, pos.CurrentPrice)
}

func TestRefreshPricesRepairsReferenceData(t *testing.T) {
	provider := &mockProvider{}
	env := setupService(t, provider)

	// Opened without provider coverage, so defaults stick
	_, err := env.svc.Buy(TradeRequest{Symbol: "NEWCO", Quantity: 5, Price: 20})
	require.NoError(t, err)

	pos, err := env.posRepo.GetBySymbolAndType("NEWCO", domain.PositionLong)
	require.NoError(t, err)
	require.Equal(t, "Unknown", pos.Sector)

	// Provider comes back with real data
	provider.quotes = map[string]domain.Quote{
		"NEWCO": {Symbol: "NEWCO", Price: 22},
	}
	provider.companyInfo = map[string]*domain.CompanyInfo{
		"NEWCO": {Symbol: "NEWCO", Sector: "Healthcare", Industry: "Biotech", Beta: 1.6},
	}

	result, err := env.svc.RefreshPrices()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	repaired, err := env.posRepo.GetBySymbolAndType("NEWCO", domain.PositionLong)
	require.NoError(t, err)
	assert.Equal(t, 22.0, repaired.CurrentPrice)
	assert.Equal(t, "Healthcare", repaired.Sector)
	assert.Equal(t, "Biotech", repaired.Industry)
	assert.Equal(t, 1.6, repaired.Beta)
}

func TestRefreshPricesEmptyPortfolio(t *testing.T) {
	env := setupService(t, &mockProvider{})

	result, err := env.svc.RefreshPrices()
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)
}

func TestHistoryFilters(t *testing.T) {
	env := setupService(t, &mockProvider{})

	day1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100, Date: day1})
	require.NoError(t, err)
	_, err = env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 5, Price: 110, Date: day2})
	require.NoError(t, err)
	_, err = env.svc.Buy(TradeRequest{Symbol: "MSFT", Quantity: 1, Price: 300, Date: day2})
	require.NoError(t, err)

	bySymbol, err := env.svc.History(TransactionFilter{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, bySymbol, 2)

	byType, err := env.svc.History(TransactionFilter{Type: domain.TransactionSell})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "AAPL", byType[0].Symbol)

	byDate, err := env.svc.History(TransactionFilter{From: day2.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	all, err := env.svc.History(TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first
	assert.True(t, !all[0].Date.Before(all[1].Date))
}

func TestRealizedGainTotals(t *testing.T) {
	env := setupService(t, &mockProvider{})

	_, err := env.svc.Buy(TradeRequest{Symbol: "AAPL", Quantity: 10, Price: 100})
	require.NoError(t, err)
	_, err = env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 5, Price: 120})
	require.NoError(t, err)
	_, err = env.svc.Sell(TradeRequest{Symbol: "AAPL", Quantity: 5, Price: 90})
	require.NoError(t, err)

	total, err := env.txRepo.TotalRealizedGains()
	require.NoError(t, err)
	assert.InDelta(t, 50.0, total, 1e-9) // +100 - 50

	bySymbol, err := env.txRepo.RealizedGainsBySymbol()
	require.NoError(t, err)
	assert.InDelta(t, 50.0, bySymbol["AAPL"], 1e-9)
}
