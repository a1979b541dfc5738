// Package reliability provides failure isolation for the market data
// provider and cloud backups of the portfolio databases.
package reliability

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the breaker state
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultResetTimeout     = 60 * time.Second
)

// CircuitBreaker protects a downstream dependency from repeated calls
// while it is failing. After the failure threshold is reached the
// breaker opens and rejects calls until the reset timeout elapses,
// then allows a single probe in half-open state.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	log              zerolog.Logger

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a breaker with the default threshold and timeout
func NewCircuitBreaker(name string, log zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: defaultFailureThreshold,
		resetTimeout:     defaultResetTimeout,
		log:              log.With().Str("component", "circuit_breaker").Str("name", name).Logger(),
		state:            StateClosed,
	}
}

// SetThresholds overrides the failure threshold and reset timeout
func (cb *CircuitBreaker) SetThresholds(failureThreshold int, resetTimeout time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureThreshold = failureThreshold
	cb.resetTimeout = resetTimeout
}

// Execute runs fn through the breaker. When the breaker is open,
// ErrCircuitOpen is returned without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.log.Info().Msg("Circuit breaker half-open, allowing probe")
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state != StateClosed {
			cb.log.Info().Msg("Circuit breaker closed")
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailure = time.Now()

	// A failed probe reopens immediately
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		if cb.state != StateOpen {
			cb.log.Warn().
				Int("failures", cb.failures).
				Dur("reset_timeout", cb.resetTimeout).
				Msg("Circuit breaker opened")
		}
		cb.state = StateOpen
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the breaker back to closed
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
}
