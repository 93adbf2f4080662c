// Package provider holds the remote providers that fetch fresh entity
// snapshots, plus the resilience wrapper shared by all of them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hszk-dev/fronttube/internal/domain/model"
	"github.com/hszk-dev/fronttube/internal/domain/repository"
	"github.com/hszk-dev/fronttube/internal/infrastructure/metrics"
)

// ResilienceConfig tunes the circuit breaker and rate limiter of a provider.
type ResilienceConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string
	// Rate is the sustained number of upstream requests per second. Zero disables limiting.
	Rate float64
	// Burst is the number of requests allowed above Rate.
	Burst int
	// MinRequests is the number of requests in Interval before the breaker may trip.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// Interval resets the closed-state counts.
	Interval time.Duration
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// DefaultResilienceConfig returns the default configuration.
// The breaker opens at a 60% failure rate over at least 10 requests.
func DefaultResilienceConfig(name string) ResilienceConfig {
	return ResilienceConfig{
		Name:             name,
		Rate:             10,
		Burst:            20,
		MinRequests:      10,
		FailureRatio:     0.6,
		Interval:         time.Minute,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// Resilient wraps a provider with a token bucket and a circuit breaker.
// Requests turned away locally fail with ErrProviderUnavailable.
type Resilient[T model.Entity] struct {
	next    repository.Provider[T]
	kind    model.Kind
	name    string
	cb      *gobreaker.CircuitBreaker[T]
	limiter *rate.Limiter
}

// NewResilient wraps next.
func NewResilient[T model.Entity](kind model.Kind, next repository.Provider[T], cfg ResilienceConfig) *Resilient[T] {
	if cfg.Name == "" {
		cfg.Name = kind.String()
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		// An upstream "not found" is a valid answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, repository.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Resilient[T]{
		next:    next,
		kind:    kind,
		name:    cfg.Name,
		cb:      cb,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Fetch waits for a rate limiter token and calls the wrapped provider through
// the circuit breaker.
func (r *Resilient[T]) Fetch(ctx context.Context, id model.RemoteIdentity) (T, error) {
	var zero T

	if err := r.limiter.Wait(ctx); err != nil {
		return zero, r.rejected(id, fmt.Errorf("rate limited: %w", err))
	}

	entity, err := r.cb.Execute(func() (T, error) {
		return r.next.Fetch(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, r.rejected(id, err)
		}
		return zero, err
	}
	return entity, nil
}

// State reports the breaker state.
func (r *Resilient[T]) State() gobreaker.State {
	return r.cb.State()
}

func (r *Resilient[T]) rejected(id model.RemoteIdentity, cause error) error {
	slog.Debug("provider request rejected",
		"name", r.name,
		"url", id.URL(),
		"error", cause,
	)
	return &repository.ProviderError{
		Kind: r.kind,
		URL:  id.URL(),
		Err:  fmt.Errorf("%w: %w", repository.ErrProviderUnavailable, cause),
	}
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

var _ repository.Provider[*model.Video] = (*Resilient[*model.Video])(nil)
