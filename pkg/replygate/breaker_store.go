package replygate

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the circuit breaker around a Store
type BreakerSettings struct {
	// Name identifies the breaker in logs and metrics (default: "store")
	Name string

	// FailureThreshold is the number of consecutive failures before opening (default: 5)
	FailureThreshold uint32

	// ResetTimeout is how long the breaker stays open before probing (default: 30s)
	ResetTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open (default: 1)
	HalfOpenRequests uint32
}

// BreakerStore wraps a Store with circuit breaker protection.
// ErrNotFound is a normal answer and never trips the breaker.
type BreakerStore struct {
	store Store
	cb    *gobreaker.CircuitBreaker[[]byte]
}

// NewBreakerStore wraps store. State changes are reported to metrics when it is non-nil.
func NewBreakerStore(store Store, settings BreakerSettings, metrics Metrics) *BreakerStore {
	if settings.Name == "" {
		settings.Name = "store"
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.ResetTimeout == 0 {
		settings.ResetTimeout = 30 * time.Second
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	threshold := settings.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.RecordCircuitBreakerStateChange(to.String())
		},
	})

	return &BreakerStore{store: store, cb: cb}
}

// Get implements Store
func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.cb.Execute(func() ([]byte, error) {
		return s.store.Get(ctx, key)
	})
}

// Set implements Store
func (s *BreakerStore) Set(ctx context.Context, key string, doc []byte) error {
	_, err := s.cb.Execute(func() ([]byte, error) {
		return nil, s.store.Set(ctx, key, doc)
	})
	return err
}

// Ping forwards to the wrapped store when it supports health checks
func (s *BreakerStore) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// State returns the breaker state ("closed", "half-open" or "open")
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}
