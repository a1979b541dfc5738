package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Intraday quotes stay useful for a few minutes
	TTLQuote = 5 * time.Minute

	// Company overview (sector, industry, beta) is slow-moving
	TTLOverview = 24 * time.Hour

	// News feeds refresh a few times per hour at most
	TTLNews = 30 * time.Minute
)
