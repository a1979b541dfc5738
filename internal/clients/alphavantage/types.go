package alphavantage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Error types

// ErrRateLimitExceeded is returned when the daily request budget is
// exhausted or the API reports throttling.
type ErrRateLimitExceeded struct {
	ResetAt time.Time
}

func (e ErrRateLimitExceeded) Error() string {
	if e.ResetAt.IsZero() {
		return "alphavantage: rate limit exceeded"
	}
	return fmt.Sprintf("alphavantage: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// ErrInvalidAPIKey is returned when the API rejects the key
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "alphavantage: invalid or missing API key"
}

// ErrSymbolNotFound is returned when the API has no data for a symbol
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alphavantage: no data for symbol %s", e.Symbol)
}

// Response types

// Quote is a single GLOBAL_QUOTE response
type Quote struct {
	Symbol           string
	Open             float64
	High             float64
	Low              float64
	Price            float64
	Volume           int64
	LatestTradingDay time.Time
	PreviousClose    float64
	Change           float64
	ChangePercent    float64
}

// CompanyOverview holds OVERVIEW fundamentals. Optional ratios are
// pointers because the API reports "None" for missing values.
type CompanyOverview struct {
	Symbol               string
	AssetType            string
	Name                 string
	Description          string
	Exchange             string
	Currency             string
	Country              string
	Sector               string
	Industry             string
	MarketCapitalization int64
	Beta                 *float64
	PERatio              *float64
	EPS                  *float64
	DividendYield        *float64
	FiftyTwoWeekHigh     *float64
	FiftyTwoWeekLow      *float64
}

// NewsItem is one article from a NEWS_SENTIMENT feed
type NewsItem struct {
	Title          string
	URL            string
	Source         string
	Summary        string
	BannerImage    string
	PublishedAt    time.Time
	SentimentScore float64
	SentimentLabel string
}

// SearchMatch is one SYMBOL_SEARCH result
type SearchMatch struct {
	Symbol     string
	Name       string
	Type       string
	Region     string
	Currency   string
	MatchScore float64
}

// Parsing

func parseGlobalQuote(body []byte) (*Quote, error) {
	var raw struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse global quote: %w", err)
	}

	q := raw.GlobalQuote
	return &Quote{
		Symbol:           q["01. symbol"],
		Open:             parseFloat64(q["02. open"]),
		High:             parseFloat64(q["03. high"]),
		Low:              parseFloat64(q["04. low"]),
		Price:            parseFloat64(q["05. price"]),
		Volume:           parseInt64(q["06. volume"]),
		LatestTradingDay: parseDate(q["07. latest trading day"]),
		PreviousClose:    parseFloat64(q["08. previous close"]),
		Change:           parseFloat64(q["09. change"]),
		ChangePercent:    parseFloat64(q["10. change percent"]),
	}, nil
}

func parseBulkQuotes(body []byte) ([]*Quote, error) {
	var raw struct {
		Data []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bulk quotes: %w", err)
	}

	quotes := make([]*Quote, 0, len(raw.Data))
	for _, entry := range raw.Data {
		symbol := entry["symbol"]
		if symbol == "" {
			continue
		}
		quotes = append(quotes, &Quote{
			Symbol:        symbol,
			Open:          parseFloat64(entry["open"]),
			High:          parseFloat64(entry["high"]),
			Low:           parseFloat64(entry["low"]),
			Price:         parseFloat64(entry["close"]),
			Volume:        parseInt64(entry["volume"]),
			PreviousClose: parseFloat64(entry["previous_close"]),
			Change:        parseFloat64(entry["change"]),
			ChangePercent: parseFloat64(entry["change_percent"]),
		})
	}

	return quotes, nil
}

func parseCompanyOverview(body []byte) (*CompanyOverview, error) {
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse company overview: %w", err)
	}

	return &CompanyOverview{
		Symbol:               raw["Symbol"],
		AssetType:            raw["AssetType"],
		Name:                 raw["Name"],
		Description:          raw["Description"],
		Exchange:             raw["Exchange"],
		Currency:             raw["Currency"],
		Country:              raw["Country"],
		Sector:               raw["Sector"],
		Industry:             raw["Industry"],
		MarketCapitalization: parseInt64(raw["MarketCapitalization"]),
		Beta:                 parseFloat64Ptr(raw["Beta"]),
		PERatio:              parseFloat64Ptr(raw["PERatio"]),
		EPS:                  parseFloat64Ptr(raw["EPS"]),
		DividendYield:        parseFloat64Ptr(raw["DividendYield"]),
		FiftyTwoWeekHigh:     parseFloat64Ptr(raw["52WeekHigh"]),
		FiftyTwoWeekLow:      parseFloat64Ptr(raw["52WeekLow"]),
	}, nil
}

func parseSymbolSearch(body []byte) ([]SearchMatch, error) {
	var raw struct {
		BestMatches []map[string]string `json:"bestMatches"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse symbol search: %w", err)
	}

	matches := make([]SearchMatch, 0, len(raw.BestMatches))
	for _, m := range raw.BestMatches {
		matches = append(matches, SearchMatch{
			Symbol:     m["1. symbol"],
			Name:       m["2. name"],
			Type:       m["3. type"],
			Region:     m["4. region"],
			Currency:   m["8. currency"],
			MatchScore: parseFloat64(m["9. matchScore"]),
		})
	}

	return matches, nil
}

func parseNewsFeed(body []byte) ([]NewsItem, error) {
	// Unlike the quote endpoints, the news feed mixes string and numeric
	// fields, so it gets a typed struct instead of map[string]string.
	var raw struct {
		Feed []struct {
			Title                 string  `json:"title"`
			URL                   string  `json:"url"`
			TimePublished         string  `json:"time_published"`
			Summary               string  `json:"summary"`
			BannerImage           string  `json:"banner_image"`
			Source                string  `json:"source"`
			OverallSentimentScore float64 `json:"overall_sentiment_score"`
			OverallSentimentLabel string  `json:"overall_sentiment_label"`
		} `json:"feed"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse news feed: %w", err)
	}

	items := make([]NewsItem, 0, len(raw.Feed))
	for _, entry := range raw.Feed {
		if entry.Title == "" {
			continue
		}
		items = append(items, NewsItem{
			Title:          entry.Title,
			URL:            entry.URL,
			Source:         entry.Source,
			Summary:        entry.Summary,
			BannerImage:    entry.BannerImage,
			PublishedAt:    parseNewsTime(entry.TimePublished),
			SentimentScore: entry.OverallSentimentScore,
			SentimentLabel: entry.OverallSentimentLabel,
		})
	}

	return items, nil
}

// Value parsing helpers. The API returns "None", "null", "-", or empty
// strings for missing values, and percentages with a trailing "%".

func parseFloat64(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat64Ptr(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" || s == "None" || s == "null" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	// Some fields come back in scientific or decimal notation
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// News timestamps arrive as compact UTC strings like "20250315T103000"
func parseNewsTime(s string) time.Time {
	t, err := time.Parse("20060102T150405", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
