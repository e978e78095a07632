// Package breaker implements the per-endpoint circuit breaker used by the
// Supergraph Fetcher, wrapping sony/gobreaker's Closed/Open/HalfOpen state
// machine behind a small, fetcher-specific interface.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrRejected is returned when a call is refused because the breaker is
// currently open (or, during half-open probing, past its allowed request
// count). The fetcher treats this distinctly from a network error: it moves
// on to the next mirror instead of surfacing a transport failure.
var ErrRejected = errors.New("breaker: call rejected, circuit open")

// Config configures one Breaker instance.
type Config struct {
	// Name identifies the protected endpoint in logs/metrics.
	Name string
	// MaxRequestsHalfOpen caps the number of requests allowed through
	// while the breaker is probing in the half-open state.
	MaxRequestsHalfOpen uint32
	// OpenTimeout is how long the breaker stays open before transitioning
	// to half-open.
	OpenTimeout time.Duration
	// FailureRatio is the fraction of requests counted since the breaker
	// last changed state that must fail before the breaker trips open.
	// Counts are not cleared periodically while the breaker is closed; they
	// reset only on a state change.
	FailureRatio float64
	// MinRequests is the minimum number of counted requests before
	// FailureRatio is evaluated.
	MinRequests uint32
}

// DefaultConfig returns reasonable defaults: 1 half-open probe, 30s open
// timeout, trip at 60% failures with at least 5 samples.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequestsHalfOpen: 1,
		OpenTimeout:         30 * time.Second,
		FailureRatio:        0.6,
		MinRequests:         5,
	}
}

// Breaker wraps a gobreaker.CircuitBreaker to protect calls to a single
// endpoint.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a Breaker from cfg.
func New(cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequestsHalfOpen,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. If the breaker is open (or rejects
// the call during half-open probing), it returns ErrRejected without
// invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrRejected
	}
	return result, err
}

// State reports the breaker's current state, mainly for observability.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
