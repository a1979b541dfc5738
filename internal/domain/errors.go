package domain

import "errors"

// Sentinel errors for the portfolio engine. Handlers map these onto
// HTTP status codes with errors.Is.
var (
	// ErrInvalidInput marks validation failures (HTTP 400)
	ErrInvalidInput = errors.New("invalid input")

	// ErrPositionNotFound is returned when a sell or cover references a
	// symbol with no open position on that side (HTTP 400)
	ErrPositionNotFound = errors.New("position not found")

	// ErrInsufficientShares is returned when a closing trade exceeds the
	// open quantity (HTTP 400)
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrProviderUnavailable is returned when the market data provider
	// cannot be reached or its circuit breaker is open (HTTP 503)
	ErrProviderUnavailable = errors.New("market data provider unavailable")

	// ErrRateLimited is returned when the provider's request budget is
	// exhausted (HTTP 429)
	ErrRateLimited = errors.New("rate limit exceeded")
)
