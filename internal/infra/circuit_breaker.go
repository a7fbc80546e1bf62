package infra

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ── Circuit Breaker ───────────────────────────────────────────────────────────
// Thin wrapper over sony/gobreaker guarding the SMTP relay, so a dead mail
// server fails fast instead of tying up workers.

// CBState represents the current circuit breaker state.
type CBState int

const (
	CBClosed   CBState = iota // requests flow
	CBHalfOpen                // probing with limited requests
	CBOpen                    // tripped, fail fast
)

func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when Execute is called while the CB is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds tunable parameters.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures to trip open
	MaxHalfOpen      uint32        // requests allowed through while half-open
	OpenTimeout      time.Duration // how long to stay open before probing
	// OnStateChange is optional; used to export the state as a metric.
	OnStateChange func(name string, to CBState)
}

func DefaultCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		MaxHalfOpen:      1,
		OpenTimeout:      60 * time.Second,
	}
}

type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxHalfOpen == 0 {
		cfg.MaxHalfOpen = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpen,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, fromGobreaker(to))
			}
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), name: cfg.Name}
}

// State returns the current CB state (safe for concurrent reads).
func (c *CircuitBreaker) State() CBState {
	return fromGobreaker(c.cb.State())
}

func (c *CircuitBreaker) Name() string { return c.name }

// Execute runs fn through the circuit breaker. Both "open" and "too many
// half-open requests" surface as ErrCircuitOpen.
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", c.name, ErrCircuitOpen)
	}
	return err
}

func fromGobreaker(s gobreaker.State) CBState {
	switch s {
	case gobreaker.StateOpen:
		return CBOpen
	case gobreaker.StateHalfOpen:
		return CBHalfOpen
	}
	return CBClosed
}
