package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/trogers1052/position-exit-signals/internal/models"
)

// GuardOptions configures a Guarded provider
type GuardOptions struct {
	Timeout          time.Duration // per call, includes limiter wait
	RatePerSecond    float64       // zero disables limiting
	Burst            int
	FailureThreshold uint32        // consecutive failures before the breaker opens
	OpenTimeout      time.Duration // how long the breaker stays open
}

// Guarded wraps a backend with a rate limiter, a circuit breaker and a
// per-call timeout. Limiter, breaker and deadline failures surface as
// models.TransientError.
type Guarded struct {
	name    string
	next    Provider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGuarded creates a guarded provider
func NewGuarded(name string, next Provider, opts GuardOptions) *Guarded {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 3
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 60 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	threshold := opts.FailureThreshold
	settings := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// An unknown ticker is a healthy answer from the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, models.ErrUnknownTicker)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Price source breaker state changed")
		},
	}

	return &Guarded{
		name:    name,
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(limit, opts.Burst),
		timeout: opts.Timeout,
	}
}

// GetDailyHistory implements Provider
func (g *Guarded) GetDailyHistory(ctx context.Context, ticker string, lookback int) ([]models.PriceBar, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, models.Transient(g.name+" rate limit", err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.GetDailyHistory(ctx, ticker, lookback)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnknownTicker):
			return nil, err
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, models.Transient(g.name+" breaker", err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, models.Transient(g.name+" fetch", err)
		default:
			return nil, fmt.Errorf("%s: %w", g.name, err)
		}
	}

	bars, _ := out.([]models.PriceBar)
	return bars, nil
}

// State reports the breaker state, for health output
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}
