// Package market serves stock quotes, company fundamentals, symbol
// search, and market status. Provider calls run through a circuit
// breaker and results are cached persistently, with stale cache data
// used as a fallback when the provider is unavailable.
package market

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/clientdata"
	"folio/internal/clients/alphavantage"
	"folio/internal/domain"
	"folio/internal/reliability"
)

// marketStatusSymbol is the proxy used to detect trading days. SPY
// trades whenever US equity markets are open.
const marketStatusSymbol = "SPY"

// Service provides market data backed by Alpha Vantage
type Service struct {
	client  alphavantage.ClientInterface
	cache   *clientdata.Repository
	breaker *reliability.CircuitBreaker
	log     zerolog.Logger
}

// NewService creates a new market data service
func NewService(client alphavantage.ClientInterface, cache *clientdata.Repository, breaker *reliability.CircuitBreaker, log zerolog.Logger) *Service {
	return &Service{
		client:  client,
		cache:   cache,
		breaker: breaker,
		log:     log.With().Str("module", "market").Logger(),
	}
}

// GetQuote returns the latest quote for a symbol, cache first. When the
// provider fails, a stale cached quote is returned rather than nothing.
func (s *Service) GetQuote(symbol string) (*domain.Quote, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	var cached domain.Quote
	fresh, err := s.cache.GetIfFresh(clientdata.TableQuotes, symbol, &cached)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed")
	}
	if fresh {
		return &cached, nil
	}

	var raw *alphavantage.Quote
	callErr := s.breaker.Execute(func() error {
		var err error
		raw, err = s.client.GetQuote(symbol)
		return err
	})
	if callErr != nil {
		if stale := s.staleQuote(symbol); stale != nil {
			s.log.Warn().Err(callErr).Str("symbol", symbol).Msg("Provider failed, serving stale quote")
			return stale, nil
		}
		return nil, mapProviderError(callErr)
	}

	quote := toDomainQuote(raw)
	if err := s.cache.Store(clientdata.TableQuotes, symbol, quote, clientdata.TTLQuote); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
	}

	return quote, nil
}

// GetQuotes returns quotes for many symbols. Fresh cache entries are
// served directly and the remainder is fetched in one bulk call.
// Symbols with neither a provider response nor any cached data are
// absent from the result.
func (s *Service) GetQuotes(symbols []string) (map[string]domain.Quote, error) {
	result := make(map[string]domain.Quote, len(symbols))

	var missing []string
	for _, symbol := range symbols {
		symbol = normalizeSymbol(symbol)
		if symbol == "" {
			continue
		}

		var cached domain.Quote
		fresh, err := s.cache.GetIfFresh(clientdata.TableQuotes, symbol, &cached)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed")
		}
		if fresh {
			result[symbol] = cached
			continue
		}
		missing = append(missing, symbol)
	}

	if len(missing) == 0 {
		return result, nil
	}

	var fetched map[string]*alphavantage.Quote
	callErr := s.breaker.Execute(func() error {
		var err error
		fetched, err = s.client.GetBulkQuotes(missing)
		return err
	})

	for _, q := range fetched {
		quote := toDomainQuote(q)
		result[q.Symbol] = *quote
		if err := s.cache.Store(clientdata.TableQuotes, q.Symbol, quote, clientdata.TTLQuote); err != nil {
			s.log.Warn().Err(err).Str("symbol", q.Symbol).Msg("Failed to cache quote")
		}
	}

	if callErr != nil {
		served := 0
		for _, symbol := range missing {
			if _, ok := result[symbol]; ok {
				continue
			}
			if stale := s.staleQuote(symbol); stale != nil {
				result[symbol] = *stale
				served++
			}
		}

		if len(result) == 0 {
			return nil, mapProviderError(callErr)
		}
		s.log.Warn().Err(callErr).
			Int("served", len(result)).
			Int("stale", served).
			Int("requested", len(symbols)).
			Msg("Provider failed, serving partial quotes")
	}

	return result, nil
}

// GetCompanyInfo returns sector, industry, and beta for a symbol.
// Symbols the provider has no coverage for get "Unknown" classification
// and a beta of 1.0 instead of an error.
func (s *Service) GetCompanyInfo(symbol string) (*domain.CompanyInfo, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	var cached domain.CompanyInfo
	fresh, err := s.cache.GetIfFresh(clientdata.TableOverview, symbol, &cached)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Overview cache read failed")
	}
	if fresh {
		return &cached, nil
	}

	var raw *alphavantage.CompanyOverview
	callErr := s.breaker.Execute(func() error {
		var err error
		raw, err = s.client.GetCompanyOverview(symbol)
		return err
	})
	if callErr != nil {
		var notFound alphavantage.ErrSymbolNotFound
		if errors.As(callErr, &notFound) {
			info := defaultCompanyInfo(symbol)
			if err := s.cache.Store(clientdata.TableOverview, symbol, info, clientdata.TTLOverview); err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache overview")
			}
			return info, nil
		}

		var stale domain.CompanyInfo
		found, err := s.cache.Get(clientdata.TableOverview, symbol, &stale)
		if err == nil && found {
			s.log.Warn().Err(callErr).Str("symbol", symbol).Msg("Provider failed, serving stale overview")
			return &stale, nil
		}
		return nil, mapProviderError(callErr)
	}

	info := toDomainCompanyInfo(raw)
	if err := s.cache.Store(clientdata.TableOverview, symbol, info, clientdata.TTLOverview); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache overview")
	}

	return info, nil
}

// GetStockInfo combines quote and company data for the detail endpoint
func (s *Service) GetStockInfo(symbol string) (*domain.StockInfo, error) {
	quote, err := s.GetQuote(symbol)
	if err != nil {
		return nil, err
	}

	company, err := s.GetCompanyInfo(symbol)
	if err != nil {
		return nil, err
	}

	return &domain.StockInfo{
		Quote:   *quote,
		Company: *company,
	}, nil
}

// Search finds symbols matching a query
func (s *Service) Search(query string) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}

	var matches []alphavantage.SearchMatch
	callErr := s.breaker.Execute(func() error {
		var err error
		matches, err = s.client.SearchSymbols(query)
		return err
	})
	if callErr != nil {
		return nil, mapProviderError(callErr)
	}

	results := make([]domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, domain.SearchResult{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Type:     m.Type,
			Region:   m.Region,
			Currency: m.Currency,
			Score:    m.MatchScore,
		})
	}

	return results, nil
}

// GetNews returns recent news articles for a symbol, cache first. When
// the provider fails, stale cached articles are served rather than
// nothing.
func (s *Service) GetNews(symbol string, limit int) ([]domain.NewsArticle, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	var cached []domain.NewsArticle
	fresh, err := s.cache.GetIfFresh(clientdata.TableNews, symbol, &cached)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("News cache read failed")
	}
	if fresh {
		return cached, nil
	}

	var items []alphavantage.NewsItem
	callErr := s.breaker.Execute(func() error {
		var err error
		items, err = s.client.GetNews(symbol, limit)
		return err
	})
	if callErr != nil {
		var stale []domain.NewsArticle
		found, err := s.cache.Get(clientdata.TableNews, symbol, &stale)
		if err == nil && found {
			s.log.Warn().Err(callErr).Str("symbol", symbol).Msg("Provider failed, serving stale news")
			return stale, nil
		}
		return nil, mapProviderError(callErr)
	}

	articles := make([]domain.NewsArticle, 0, len(items))
	for _, item := range items {
		articles = append(articles, domain.NewsArticle{
			Title:          item.Title,
			URL:            item.URL,
			Source:         item.Source,
			Summary:        item.Summary,
			BannerImage:    item.BannerImage,
			Published:      item.PublishedAt,
			Sentiment:      item.SentimentLabel,
			SentimentScore: item.SentimentScore,
		})
	}

	if err := s.cache.Store(clientdata.TableNews, symbol, articles, clientdata.TTLNews); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache news")
	}

	return articles, nil
}

// MarketStatus reports whether US equity markets are trading right now.
// The session window check uses the New York clock. Within the window,
// SPY's latest trading day confirms today is not a holiday; when that
// quote is unavailable the clock decides alone.
func (s *Service) MarketStatus() domain.MarketStatus {
	now := time.Now()
	open := s.isMarketOpen(now)

	status := "closed"
	if open {
		status = "open"
	}

	return domain.MarketStatus{
		Open:        open,
		Status:      status,
		LastUpdated: now.UTC(),
	}
}

func (s *Service) isMarketOpen(now time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	ny := now.In(loc)

	if ny.Weekday() == time.Saturday || ny.Weekday() == time.Sunday {
		return false
	}

	// Regular session 9:30 to 16:00
	minutes := ny.Hour()*60 + ny.Minute()
	if minutes < 9*60+30 || minutes >= 16*60 {
		return false
	}

	quote, err := s.GetQuote(marketStatusSymbol)
	if err != nil {
		s.log.Debug().Err(err).Msg("Market status proxy quote unavailable")
		return true
	}
	if quote.Timestamp.IsZero() {
		return true
	}

	return quote.Timestamp.In(loc).Format("2006-01-02") == ny.Format("2006-01-02")
}

// RemainingRequests returns the provider's remaining daily budget
func (s *Service) RemainingRequests() int {
	return s.client.GetRemainingRequests()
}

// BreakerState returns the provider circuit breaker state
func (s *Service) BreakerState() reliability.CircuitState {
	return s.breaker.State()
}

func (s *Service) staleQuote(symbol string) *domain.Quote {
	var stale domain.Quote
	found, err := s.cache.Get(clientdata.TableQuotes, symbol, &stale)
	if err != nil || !found {
		return nil
	}
	return &stale
}

func toDomainQuote(q *alphavantage.Quote) *domain.Quote {
	return &domain.Quote{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		PreviousClose: q.PreviousClose,
		Timestamp:     q.LatestTradingDay,
	}
}

func toDomainCompanyInfo(o *alphavantage.CompanyOverview) *domain.CompanyInfo {
	info := &domain.CompanyInfo{
		Symbol:      o.Symbol,
		Name:        o.Name,
		Sector:      o.Sector,
		Industry:    o.Industry,
		Beta:        domain.BetaDefault,
		MarketCap:   o.MarketCapitalization,
		Description: o.Description,
	}

	if info.Sector == "" || info.Sector == "None" {
		info.Sector = "Unknown"
	}
	if info.Industry == "" || info.Industry == "None" {
		info.Industry = "Unknown"
	}
	if o.Beta != nil {
		info.Beta = domain.ClampBeta(*o.Beta)
	}

	return info
}

func defaultCompanyInfo(symbol string) *domain.CompanyInfo {
	return &domain.CompanyInfo{
		Symbol:   symbol,
		Sector:   "Unknown",
		Industry: "Unknown",
		Beta:     domain.BetaDefault,
	}
}

// mapProviderError converts client and breaker errors to domain errors
func mapProviderError(err error) error {
	var rateLimited alphavantage.ErrRateLimitExceeded
	if errors.As(err, &rateLimited) {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
