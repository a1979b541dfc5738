package alphavantage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewClient tests client creation.
func TestNewClient(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestRateLimiting tests the rate limiting functionality.
func TestRateLimiting(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	// Simulate using all requests
	for i := 0; i < 25; i++ {
		remaining := client.GetRemainingRequests()
		assert.Equal(t, 25-i, remaining)
		err := client.checkRateLimit()
		require.NoError(t, err)
	}

	// 26th request should fail
	err := client.checkRateLimit()
	assert.Error(t, err)
	assert.IsType(t, ErrRateLimitExceeded{}, err)
}

// TestResetDailyCounter tests counter reset.
func TestResetDailyCounter(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	// Use some requests
	for i := 0; i < 10; i++ {
		_ = client.checkRateLimit()
	}
	assert.Equal(t, 15, client.GetRemainingRequests())

	// Reset
	client.ResetDailyCounter()
	assert.Equal(t, 25, client.GetRemainingRequests())
}

// TestCaching tests the cache functionality.
func TestCaching(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	// Set a cache entry
	testData := "test data"
	client.setCache("test-key", testData, time.Hour)

	// Retrieve it
	cached, ok := client.getFromCache("test-key")
	assert.True(t, ok)
	assert.Equal(t, testData, cached)

	// Non-existent key
	_, ok = client.getFromCache("non-existent")
	assert.False(t, ok)
}

// TestCacheExpiration tests cache expiration.
func TestCacheExpiration(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	// Set with very short TTL
	client.setCache("test-key", "test data", time.Millisecond)

	// Wait for expiration
	time.Sleep(5 * time.Millisecond)

	// Should be expired
	_, ok := client.getFromCache("test-key")
	assert.False(t, ok)
}

// TestClearCache tests cache clearing.
func TestClearCache(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	client.setCache("key1", "data1", time.Hour)
	client.setCache("key2", "data2", time.Hour)

	client.ClearCache()

	_, ok1 := client.getFromCache("key1")
	_, ok2 := client.getFromCache("key2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

// TestBuildCacheKey tests cache key generation.
func TestBuildCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		function string
		params   map[string]string
	}{
		{
			name:     "Simple function",
			function: "OVERVIEW",
			params:   map[string]string{"symbol": "IBM"},
		},
		{
			name:     "Multiple params",
			function: "SYMBOL_SEARCH",
			params: map[string]string{
				"keywords": "apple",
				"datatype": "json",
			},
		},
		{
			name:     "With apikey excluded",
			function: "GLOBAL_QUOTE",
			params: map[string]string{
				"symbol": "MSFT",
				"apikey": "secret", // Should be excluded
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := buildCacheKey(tt.function, tt.params)
			assert.Contains(t, key, tt.function)
			assert.NotContains(t, key, "apikey=")
		})
	}
}

// TestBuildCacheKeyDeterministic tests that param order doesn't matter.
func TestBuildCacheKeyDeterministic(t *testing.T) {
	a := buildCacheKey("F", map[string]string{"a": "1", "b": "2"})
	b := buildCacheKey("F", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
}

// TestParseFloat64 tests float parsing.
func TestParseFloat64(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"123.45", 123.45},
		{"0", 0},
		{"None", 0},
		{"", 0},
		{"null", 0},
		{"-", 0},
		{"50.5%", 50.5},
		{"invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseFloat64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestParseFloat64Ptr tests nullable float parsing.
func TestParseFloat64Ptr(t *testing.T) {
	tests := []struct {
		input    string
		isNil    bool
		expected float64
	}{
		{"123.45", false, 123.45},
		{"None", true, 0},
		{"", true, 0},
		{"null", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseFloat64Ptr(tt.input)
			if tt.isNil {
				assert.Nil(t, result)
			} else {
				require.NotNil(t, result)
				assert.Equal(t, tt.expected, *result)
			}
		})
	}
}

// TestParseInt64 tests integer parsing.
func TestParseInt64(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"12345", 12345},
		{"0", 0},
		{"None", 0},
		{"", 0},
		{"1.5E10", 15000000000},
		{"123.45", 123},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseInt64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestParseDate tests date parsing.
func TestParseDate(t *testing.T) {
	result := parseDate("2024-01-15")
	assert.Equal(t, 2024, result.Year())
	assert.Equal(t, time.January, result.Month())
	assert.Equal(t, 15, result.Day())

	assert.True(t, parseDate("not-a-date").IsZero())
}

// TestParseGlobalQuote tests global quote parsing.
func TestParseGlobalQuote(t *testing.T) {
	jsonData := `{
		"Global Quote": {
			"01. symbol": "IBM",
			"02. open": "185.00",
			"03. high": "186.50",
			"04. low": "184.50",
			"05. price": "186.20",
			"06. volume": "3456789",
			"07. latest trading day": "2024-01-15",
			"08. previous close": "185.00",
			"09. change": "1.20",
			"10. change percent": "0.65%"
		}
	}`

	quote, err := parseGlobalQuote([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "IBM", quote.Symbol)
	assert.Equal(t, 185.0, quote.Open)
	assert.Equal(t, 186.5, quote.High)
	assert.Equal(t, 184.5, quote.Low)
	assert.Equal(t, 186.2, quote.Price)
	assert.Equal(t, int64(3456789), quote.Volume)
	assert.Equal(t, 185.0, quote.PreviousClose)
	assert.Equal(t, 1.2, quote.Change)
	assert.Equal(t, 0.65, quote.ChangePercent)
}

// TestParseBulkQuotes tests realtime bulk quote parsing.
func TestParseBulkQuotes(t *testing.T) {
	jsonData := `{
		"endpoint": "Realtime Bulk Quotes",
		"message": "success",
		"data": [
			{
				"symbol": "AAPL",
				"open": "184.00",
				"high": "186.00",
				"low": "183.50",
				"close": "185.50",
				"volume": "50000000",
				"previous_close": "184.20",
				"change": "1.30",
				"change_percent": "0.71"
			},
			{
				"symbol": "MSFT",
				"close": "380.00",
				"previous_close": "382.50",
				"change": "-2.50",
				"change_percent": "-0.65"
			}
		]
	}`

	quotes, err := parseBulkQuotes([]byte(jsonData))
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	assert.Equal(t, "AAPL", quotes[0].Symbol)
	assert.Equal(t, 185.5, quotes[0].Price)
	assert.Equal(t, int64(50000000), quotes[0].Volume)

	assert.Equal(t, "MSFT", quotes[1].Symbol)
	assert.Equal(t, -2.5, quotes[1].Change)
}

// TestParseSymbolSearch tests symbol search parsing.
func TestParseSymbolSearch(t *testing.T) {
	jsonData := `{
		"bestMatches": [
			{
				"1. symbol": "IBM",
				"2. name": "International Business Machines Corp",
				"3. type": "Equity",
				"4. region": "United States",
				"5. marketOpen": "09:30",
				"6. marketClose": "16:00",
				"7. timezone": "UTC-05",
				"8. currency": "USD",
				"9. matchScore": "1.0000"
			}
		]
	}`

	matches, err := parseSymbolSearch([]byte(jsonData))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, "IBM", matches[0].Symbol)
	assert.Equal(t, "International Business Machines Corp", matches[0].Name)
	assert.Equal(t, "Equity", matches[0].Type)
	assert.Equal(t, "USD", matches[0].Currency)
	assert.Equal(t, 1.0, matches[0].MatchScore)
}

// TestParseCompanyOverview tests company overview parsing.
func TestParseCompanyOverview(t *testing.T) {
	jsonData := `{
		"Symbol": "IBM",
		"AssetType": "Common Stock",
		"Name": "International Business Machines",
		"Description": "IBM is a technology company.",
		"Exchange": "NYSE",
		"Currency": "USD",
		"Country": "USA",
		"Sector": "Technology",
		"Industry": "Information Technology Services",
		"MarketCapitalization": "125000000000",
		"PERatio": "20.5",
		"EPS": "9.05",
		"DividendYield": "0.0485",
		"52WeekHigh": "200.00",
		"52WeekLow": "120.00",
		"Beta": "0.95"
	}`

	overview, err := parseCompanyOverview([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "IBM", overview.Symbol)
	assert.Equal(t, "Common Stock", overview.AssetType)
	assert.Equal(t, "International Business Machines", overview.Name)
	assert.Equal(t, "NYSE", overview.Exchange)
	assert.Equal(t, "USD", overview.Currency)
	assert.Equal(t, "Technology", overview.Sector)
	assert.Equal(t, int64(125000000000), overview.MarketCapitalization)
	require.NotNil(t, overview.Beta)
	assert.Equal(t, 0.95, *overview.Beta)
	require.NotNil(t, overview.PERatio)
	assert.Equal(t, 20.5, *overview.PERatio)
	require.NotNil(t, overview.FiftyTwoWeekHigh)
	assert.Equal(t, 200.0, *overview.FiftyTwoWeekHigh)
}

// TestParseNewsFeed tests news sentiment feed parsing.
func TestParseNewsFeed(t *testing.T) {
	jsonData := `{
		"items": "2",
		"feed": [
			{
				"title": "IBM announces quantum milestone",
				"url": "https://example.com/ibm-quantum",
				"time_published": "20240115T143000",
				"summary": "IBM reached a new quantum computing milestone.",
				"banner_image": "https://example.com/banner.jpg",
				"source": "Example Wire",
				"overall_sentiment_score": 0.412,
				"overall_sentiment_label": "Bullish"
			},
			{
				"title": "",
				"url": "https://example.com/empty"
			}
		]
	}`

	items, err := parseNewsFeed([]byte(jsonData))
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "IBM announces quantum milestone", items[0].Title)
	assert.Equal(t, "https://example.com/ibm-quantum", items[0].URL)
	assert.Equal(t, "Example Wire", items[0].Source)
	assert.Equal(t, "https://example.com/banner.jpg", items[0].BannerImage)
	assert.Equal(t, 0.412, items[0].SentimentScore)
	assert.Equal(t, "Bullish", items[0].SentimentLabel)
	assert.Equal(t, 2024, items[0].PublishedAt.Year())
	assert.Equal(t, 14, items[0].PublishedAt.Hour())
	assert.Equal(t, 30, items[0].PublishedAt.Minute())
}

// TestParseNewsTime tests compact news timestamp parsing.
func TestParseNewsTime(t *testing.T) {
	result := parseNewsTime("20240115T143000")
	assert.Equal(t, 2024, result.Year())
	assert.Equal(t, time.January, result.Month())
	assert.Equal(t, 15, result.Day())

	assert.True(t, parseNewsTime("not-a-time").IsZero())
}

// TestParseCompanyOverviewMissingValues tests "None" handling.
func TestParseCompanyOverviewMissingValues(t *testing.T) {
	jsonData := `{
		"Symbol": "NEWCO",
		"Name": "New Company",
		"Sector": "None",
		"Beta": "None",
		"PERatio": "-"
	}`

	overview, err := parseCompanyOverview([]byte(jsonData))
	require.NoError(t, err)

	assert.Nil(t, overview.Beta)
	assert.Nil(t, overview.PERatio)
}

// TestErrorTypes tests error type implementations.
func TestErrorTypes(t *testing.T) {
	t.Run("ErrRateLimitExceeded", func(t *testing.T) {
		err := ErrRateLimitExceeded{}
		assert.Contains(t, err.Error(), "rate limit")
	})

	t.Run("ErrInvalidAPIKey", func(t *testing.T) {
		err := ErrInvalidAPIKey{}
		assert.Contains(t, err.Error(), "invalid")
	})

	t.Run("ErrSymbolNotFound", func(t *testing.T) {
		err := ErrSymbolNotFound{Symbol: "XYZ"}
		assert.Contains(t, err.Error(), "XYZ")
	})
}

// TestAPIErrorDetection tests detection of API error responses.
func TestAPIErrorDetection(t *testing.T) {
	client := NewClient("test-key", zerolog.Nop())

	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{
			name:        "Rate limit note",
			body:        `{"Note": "API call frequency is limited"}`,
			expectError: true,
		},
		{
			name:        "Error message",
			body:        `{"Error Message": "Invalid symbol"}`,
			expectError: true,
		},
		{
			name:        "Thank you message",
			body:        `Thank you for using Alpha Vantage!`,
			expectError: true,
		},
		{
			name:        "Valid response",
			body:        `{"data": "valid"}`,
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.checkAPIError([]byte(tt.body))
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestNextMidnightUTC tests the midnight calculation.
func TestNextMidnightUTC(t *testing.T) {
	midnight := nextMidnightUTC()

	now := time.Now().UTC()
	assert.True(t, midnight.After(now))
	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, 0, midnight.Minute())
	assert.Equal(t, 0, midnight.Second())
}

// TestInterfaceImplementation verifies Client implements ClientInterface.
func TestInterfaceImplementation(t *testing.T) {
	var _ ClientInterface = (*Client)(nil)
}
