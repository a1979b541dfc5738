// Package alphavantage provides a client for the Alpha Vantage API
// with request budgeting, response caching, and typed parsing.
package alphavantage

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	baseURL = "https://www.alphavantage.co/query"

	// Free tier allows 25 requests per day
	dailyRequestLimit = 25

	// REALTIME_BULK_QUOTES accepts at most 100 symbols per call
	bulkQuoteBatchSize = 100
)

// ClientInterface defines the operations exposed by the client.
// Consumers should depend on this for testability.
type ClientInterface interface {
	GetQuote(symbol string) (*Quote, error)
	GetBulkQuotes(symbols []string) (map[string]*Quote, error)
	GetCompanyOverview(symbol string) (*CompanyOverview, error)
	SearchSymbols(query string) ([]SearchMatch, error)
	GetNews(symbol string, limit int) ([]NewsItem, error)
	GetRemainingRequests() int
}

// Client is an Alpha Vantage API client with daily request budgeting
// and an in-memory response cache.
type Client struct {
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	mu           sync.Mutex
	requestCount int
	resetAt      time.Time

	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
	cacheTTL CacheTTL
}

type cacheEntry struct {
	data      interface{}
	expiresAt time.Time
}

// CacheTTL configures how long each response category is cached in memory
type CacheTTL struct {
	Fundamentals time.Duration
	PriceData    time.Duration
	Search       time.Duration
	News         time.Duration
}

// DefaultCacheTTL returns the default in-memory cache durations
func DefaultCacheTTL() CacheTTL {
	return CacheTTL{
		Fundamentals: 24 * time.Hour,
		PriceData:    time.Minute,
		Search:       time.Hour,
		News:         30 * time.Minute,
	}
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("client", "alphavantage").Logger(),
		resetAt:    nextMidnightUTC(),
		cache:      make(map[string]cacheEntry),
		cacheTTL:   DefaultCacheTTL(),
	}
}

// SetCacheTTL overrides the default cache durations
func (c *Client) SetCacheTTL(ttl CacheTTL) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cacheTTL = ttl
}

// GetQuote fetches the latest quote for a symbol via GLOBAL_QUOTE
func (c *Client) GetQuote(symbol string) (*Quote, error) {
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey("GLOBAL_QUOTE", params)

	if cached, ok := c.getFromCache(key); ok {
		return cached.(*Quote), nil
	}

	body, err := c.request("GLOBAL_QUOTE", params)
	if err != nil {
		return nil, err
	}

	quote, err := parseGlobalQuote(body)
	if err != nil {
		return nil, err
	}
	if quote.Symbol == "" {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}

	c.setCache(key, quote, c.cacheTTL.PriceData)
	return quote, nil
}

// GetBulkQuotes fetches quotes for many symbols via REALTIME_BULK_QUOTES,
// batching requests at the API's limit of 100 symbols. Symbols the API
// does not return are simply absent from the result map.
func (c *Client) GetBulkQuotes(symbols []string) (map[string]*Quote, error) {
	result := make(map[string]*Quote, len(symbols))

	for start := 0; start < len(symbols); start += bulkQuoteBatchSize {
		end := start + bulkQuoteBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		body, err := c.request("REALTIME_BULK_QUOTES", map[string]string{
			"symbol": strings.Join(batch, ","),
		})
		if err != nil {
			return result, err
		}

		quotes, err := parseBulkQuotes(body)
		if err != nil {
			return result, err
		}

		for _, q := range quotes {
			result[q.Symbol] = q
		}
	}

	return result, nil
}

// GetCompanyOverview fetches company fundamentals via OVERVIEW
func (c *Client) GetCompanyOverview(symbol string) (*CompanyOverview, error) {
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey("OVERVIEW", params)

	if cached, ok := c.getFromCache(key); ok {
		return cached.(*CompanyOverview), nil
	}

	body, err := c.request("OVERVIEW", params)
	if err != nil {
		return nil, err
	}

	overview, err := parseCompanyOverview(body)
	if err != nil {
		return nil, err
	}
	if overview.Symbol == "" {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}

	c.setCache(key, overview, c.cacheTTL.Fundamentals)
	return overview, nil
}

// SearchSymbols finds symbols matching a query via SYMBOL_SEARCH
func (c *Client) SearchSymbols(query string) ([]SearchMatch, error) {
	params := map[string]string{"keywords": query}
	key := buildCacheKey("SYMBOL_SEARCH", params)

	if cached, ok := c.getFromCache(key); ok {
		return cached.([]SearchMatch), nil
	}

	body, err := c.request("SYMBOL_SEARCH", params)
	if err != nil {
		return nil, err
	}

	matches, err := parseSymbolSearch(body)
	if err != nil {
		return nil, err
	}

	c.setCache(key, matches, c.cacheTTL.Search)
	return matches, nil
}

// GetNews fetches recent articles for a symbol via NEWS_SENTIMENT.
// limit caps the number of articles; values outside 1..1000 fall back
// to the API default of 50.
func (c *Client) GetNews(symbol string, limit int) ([]NewsItem, error) {
	params := map[string]string{"tickers": symbol}
	if limit > 0 && limit <= 1000 {
		params["limit"] = strconv.Itoa(limit)
	}
	key := buildCacheKey("NEWS_SENTIMENT", params)

	if cached, ok := c.getFromCache(key); ok {
		return cached.([]NewsItem), nil
	}

	body, err := c.request("NEWS_SENTIMENT", params)
	if err != nil {
		return nil, err
	}

	items, err := parseNewsFeed(body)
	if err != nil {
		return nil, err
	}

	c.setCache(key, items, c.cacheTTL.News)
	return items, nil
}

// request performs an HTTP GET against the API with rate limiting
// and API-level error detection.
func (c *Client) request(function string, params map[string]string) ([]byte, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", function)
	q.Set("apikey", c.apiKey)
	for k, v := range params {
		q.Set(k, v)
	}

	reqURL := baseURL + "?" + q.Encode()

	c.log.Debug().Str("function", function).Msg("API request")

	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("request failed for %s: %w", function, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d for %s", resp.StatusCode, function)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response for %s: %w", function, err)
	}

	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkAPIError detects error payloads the API returns with HTTP 200
func (c *Client) checkAPIError(body []byte) error {
	s := string(body)

	if strings.Contains(s, "\"Note\"") || strings.Contains(s, "Thank you for using Alpha Vantage") {
		return ErrRateLimitExceeded{}
	}
	if strings.Contains(s, "\"Error Message\"") {
		return fmt.Errorf("API error: %s", s)
	}
	if strings.Contains(s, "\"Information\"") && strings.Contains(s, "apikey") {
		return ErrInvalidAPIKey{}
	}

	return nil
}

// checkRateLimit enforces the daily request budget, rolling over at
// midnight UTC.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if now.After(c.resetAt) {
		c.requestCount = 0
		c.resetAt = nextMidnightUTC()
	}

	if c.requestCount >= dailyRequestLimit {
		return ErrRateLimitExceeded{ResetAt: c.resetAt}
	}

	c.requestCount++
	return nil
}

// GetRemainingRequests returns the number of requests left in today's budget
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().UTC().After(c.resetAt) {
		return dailyRequestLimit
	}
	return dailyRequestLimit - c.requestCount
}

// ResetDailyCounter resets the request budget immediately
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.resetAt = nextMidnightUTC()
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Cache helpers

func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(function)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	return b.String()
}

func (c *Client) setCache(key string, data interface{}, ttl time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = cacheEntry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// ClearCache drops all cached responses
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]cacheEntry)
}
