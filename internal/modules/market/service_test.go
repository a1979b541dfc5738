package market

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"folio/internal/clientdata"
	"folio/internal/clients/alphavantage"
	"folio/internal/domain"
	"folio/internal/reliability"
)

// mockClient is a hand-written ClientInterface stub
type mockClient struct {
	quote        *alphavantage.Quote
	quoteErr     error
	bulk         map[string]*alphavantage.Quote
	bulkErr      error
	overview     *alphavantage.CompanyOverview
	overviewErr  error
	matches      []alphavantage.SearchMatch
	searchErr    error
	news         []alphavantage.NewsItem
	newsErr      error
	quoteCalls   int
	bulkCalls    int
	overviewCall int
	newsCalls    int
}

func (m *mockClient) GetQuote(symbol string) (*alphavantage.Quote, error) {
	m.quoteCalls++
	return m.quote, m.quoteErr
}

func (m *mockClient) GetBulkQuotes(symbols []string) (map[string]*alphavantage.Quote, error) {
	m.bulkCalls++
	if m.bulkErr != nil {
		return map[string]*alphavantage.Quote{}, m.bulkErr
	}
	result := make(map[string]*alphavantage.Quote)
	for _, s := range symbols {
		if q, ok := m.bulk[s]; ok {
			result[s] = q
		}
	}
	return result, nil
}

func (m *mockClient) GetCompanyOverview(symbol string) (*alphavantage.CompanyOverview, error) {
	m.overviewCall++
	return m.overview, m.overviewErr
}

func (m *mockClient) SearchSymbols(query string) ([]alphavantage.SearchMatch, error) {
	return m.matches, m.searchErr
}

func (m *mockClient) GetNews(symbol string, limit int) ([]alphavantage.NewsItem, error) {
	m.newsCalls++
	return m.news, m.newsErr
}

func (m *mockClient) GetRemainingRequests() int { return 25 }

const testSchema = `
CREATE TABLE quotes (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE company_overview (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE news (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
`

func setupService(t *testing.T, client *mockClient) (*Service, *clientdata.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	cache := clientdata.NewRepository(db)
	breaker := reliability.NewCircuitBreaker("test", zerolog.Nop())
	return NewService(client, cache, breaker, zerolog.Nop()), cache
}

func avQuote(symbol string, price float64) *alphavantage.Quote {
	return &alphavantage.Quote{
		Symbol:           symbol,
		Price:            price,
		Change:           1.5,
		ChangePercent:    1.0,
		Volume:           1000,
		PreviousClose:    price - 1.5,
		LatestTradingDay: time.Now().UTC().Truncate(24 * time.Hour),
	}
}

func TestGetQuoteFetchesAndCaches(t *testing.T) {
	client := &mockClient{quote: avQuote("AAPL", 150)}
	svc, _ := setupService(t, client)

	quote, err := svc.GetQuote("aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 150.0, quote.Price)
	assert.Equal(t, 1, client.quoteCalls)

	// Second call is served from cache
	again, err := svc.GetQuote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, again.Price)
	assert.Equal(t, 1, client.quoteCalls)
}

func TestGetQuoteStaleFallback(t *testing.T) {
	client := &mockClient{quote: avQuote("AAPL", 150)}
	svc, cache := setupService(t, client)

	// Seed an already expired cache entry
	stale := domain.Quote{Symbol: "AAPL", Price: 140}
	require.NoError(t, cache.Store(clientdata.TableQuotes, "AAPL", &stale, -time.Minute))

	client.quoteErr = errors.New("connection refused")

	quote, err := svc.GetQuote("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 140.0, quote.Price)
}

func TestGetQuoteProviderDownNoCache(t *testing.T) {
	client := &mockClient{quoteErr: errors.New("connection refused")}
	svc, _ := setupService(t, client)

	_, err := svc.GetQuote("AAPL")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestGetQuoteRateLimited(t *testing.T) {
	client := &mockClient{quoteErr: alphavantage.ErrRateLimitExceeded{}}
	svc, _ := setupService(t, client)

	_, err := svc.GetQuote("AAPL")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestGetQuoteEmptySymbol(t *testing.T) {
	svc, _ := setupService(t, &mockClient{})

	_, err := svc.GetQuote("  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetQuotesMixesCacheAndBulkFetch(t *testing.T) {
	client := &mockClient{bulk: map[string]*alphavantage.Quote{
		"MSFT": avQuote("MSFT", 400),
	}}
	svc, cache := setupService(t, client)

	fresh := domain.Quote{Symbol: "AAPL", Price: 150}
	require.NoError(t, cache.Store(clientdata.TableQuotes, "AAPL", &fresh, time.Minute))

	quotes, err := svc.GetQuotes([]string{"AAPL", "MSFT", "MISSING"})
	require.NoError(t, err)

	assert.Len(t, quotes, 2)
	assert.Equal(t, 150.0, quotes["AAPL"].Price)
	assert.Equal(t, 400.0, quotes["MSFT"].Price)
	assert.Equal(t, 1, client.bulkCalls)
}

func TestGetQuotesAllCachedSkipsProvider(t *testing.T) {
	client := &mockClient{}
	svc, cache := setupService(t, client)

	require.NoError(t, cache.Store(clientdata.TableQuotes, "AAPL", &domain.Quote{Symbol: "AAPL", Price: 150}, time.Minute))

	quotes, err := svc.GetQuotes([]string{"AAPL"})
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
	assert.Equal(t, 0, client.bulkCalls)
}

func TestGetQuotesPartialStaleOnProviderFailure(t *testing.T) {
	client := &mockClient{bulkErr: errors.New("connection refused")}
	svc, cache := setupService(t, client)

	require.NoError(t, cache.Store(clientdata.TableQuotes, "AAPL", &domain.Quote{Symbol: "AAPL", Price: 140}, -time.Minute))

	quotes, err := svc.GetQuotes([]string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
	assert.Equal(t, 140.0, quotes["AAPL"].Price)
}

func TestGetQuotesProviderDownNothingCached(t *testing.T) {
	client := &mockClient{bulkErr: errors.New("connection refused")}
	svc, _ := setupService(t, client)

	_, err := svc.GetQuotes([]string{"AAPL"})
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestGetCompanyInfoClampsBeta(t *testing.T) {
	beta := 9.5
	client := &mockClient{overview: &alphavantage.CompanyOverview{
		Symbol:   "TSLA",
		Name:     "Tesla Inc",
		Sector:   "Consumer Cyclical",
		Industry: "Auto Manufacturers",
		Beta:     &beta,
	}}
	svc, _ := setupService(t, client)

	info, err := svc.GetCompanyInfo("TSLA")
	require.NoError(t, err)
	assert.Equal(t, domain.BetaMax, info.Beta)
	assert.Equal(t, "Consumer Cyclical", info.Sector)
}

func TestGetCompanyInfoDefaults(t *testing.T) {
	client := &mockClient{overview: &alphavantage.CompanyOverview{Symbol: "VTI"}}
	svc, _ := setupService(t, client)

	info, err := svc.GetCompanyInfo("VTI")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", info.Sector)
	assert.Equal(t, "Unknown", info.Industry)
	assert.Equal(t, domain.BetaDefault, info.Beta)
}

func TestGetCompanyInfoSymbolNotFound(t *testing.T) {
	client := &mockClient{overviewErr: alphavantage.ErrSymbolNotFound{Symbol: "NOPE"}}
	svc, _ := setupService(t, client)

	info, err := svc.GetCompanyInfo("NOPE")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", info.Sector)
	assert.Equal(t, domain.BetaDefault, info.Beta)

	// The fallback is cached so the budget is not burned again
	_, err = svc.GetCompanyInfo("NOPE")
	require.NoError(t, err)
	assert.Equal(t, 1, client.overviewCall)
}

func TestGetCompanyInfoCached(t *testing.T) {
	client := &mockClient{overview: &alphavantage.CompanyOverview{Symbol: "AAPL", Sector: "Technology"}}
	svc, _ := setupService(t, client)

	_, err := svc.GetCompanyInfo("AAPL")
	require.NoError(t, err)
	_, err = svc.GetCompanyInfo("AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, client.overviewCall)
}

func TestSearch(t *testing.T) {
	client := &mockClient{matches: []alphavantage.SearchMatch{
		{Symbol: "AAPL", Name: "Apple Inc", Type: "Equity", Region: "United States", Currency: "USD", MatchScore: 1.0},
	}}
	svc, _ := setupService(t, client)

	results, err := svc.Search("apple")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "AAPL", results[0].Symbol)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _ := setupService(t, &mockClient{})

	_, err := svc.Search("")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetNewsFetchesAndCaches(t *testing.T) {
	published := time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)
	client := &mockClient{news: []alphavantage.NewsItem{
		{
			Title:          "Apple unveils new chip",
			URL:            "https://example.com/apple-chip",
			Source:         "Example Wire",
			PublishedAt:    published,
			SentimentScore: 0.35,
			SentimentLabel: "Somewhat-Bullish",
		},
	}}
	svc, _ := setupService(t, client)

	articles, err := svc.GetNews("aapl", 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Apple unveils new chip", articles[0].Title)
	assert.Equal(t, "Somewhat-Bullish", articles[0].Sentiment)
	assert.Equal(t, 0.35, articles[0].SentimentScore)
	assert.True(t, articles[0].Published.Equal(published))
	assert.Equal(t, 1, client.newsCalls)

	// Second call is served from cache
	again, err := svc.GetNews("AAPL", 10)
	require.NoError(t, err)
	assert.Len(t, again, 1)
	assert.Equal(t, 1, client.newsCalls)
}

func TestGetNewsStaleFallback(t *testing.T) {
	client := &mockClient{newsErr: errors.New("connection refused")}
	svc, cache := setupService(t, client)

	stale := []domain.NewsArticle{{Title: "Old headline", Source: "Example Wire"}}
	require.NoError(t, cache.Store(clientdata.TableNews, "AAPL", stale, -time.Minute))

	articles, err := svc.GetNews("AAPL", 0)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Old headline", articles[0].Title)
}

func TestGetNewsProviderDownNoCache(t *testing.T) {
	client := &mockClient{newsErr: errors.New("connection refused")}
	svc, _ := setupService(t, client)

	_, err := svc.GetNews("AAPL", 0)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestGetNewsEmptySymbol(t *testing.T) {
	svc, _ := setupService(t, &mockClient{})

	_, err := svc.GetNews("  ", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client := &mockClient{searchErr: errors.New("connection refused")}
	svc, _ := setupService(t, client)

	for i := 0; i < 5; i++ {
		_, err := svc.Search("apple")
		require.Error(t, err)
	}

	assert.Equal(t, reliability.StateOpen, svc.BreakerState())

	_, err := svc.Search("apple")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestMarketStatusWeekend(t *testing.T) {
	svc, _ := setupService(t, &mockClient{})

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Saturday noon
	saturday := time.Date(2025, 1, 4, 12, 0, 0, 0, loc)
	assert.False(t, svc.isMarketOpen(saturday))

	// Weekday before the opening bell
	early := time.Date(2025, 1, 6, 8, 0, 0, 0, loc)
	assert.False(t, svc.isMarketOpen(early))

	// Weekday after the close
	late := time.Date(2025, 1, 6, 16, 30, 0, 0, loc)
	assert.False(t, svc.isMarketOpen(late))
}

func TestMarketStatusShape(t *testing.T) {
	svc, _ := setupService(t, &mockClient{quoteErr: errors.New("down")})

	status := svc.MarketStatus()
	assert.Contains(t, []string{"open", "closed"}, status.Status)
	assert.Equal(t, status.Open, status.Status == "open")
	assert.False(t, status.LastUpdated.IsZero())
}
