package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/resilience"
)

// ResilientConfig configures the Resilient decorator.
type ResilientConfig struct {
	Retry             resilience.RetryConfig
	Circuit           resilience.CircuitBreakerConfig
	RequestsPerSecond float64 // 0 disables rate limiting
	Burst             int
}

// Resilient wraps a Provider with a shared rate limiter, a circuit breaker
// and retry with backoff for transient failures. Every attempt waits on
// the limiter and passes through the breaker.
type Resilient struct {
	next    Provider
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewResilient decorates next.
func NewResilient(next Provider, cfg ResilientConfig) *Resilient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	cfg.Circuit.Name = next.Name()
	return &Resilient{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
		retry:   cfg.Retry,
	}
}

func (r *Resilient) Name() string  { return r.next.Name() }
func (r *Resilient) Model() string { return r.next.Model() }

// Breaker exposes the circuit breaker for health reporting.
func (r *Resilient) Breaker() *resilience.CircuitBreaker { return r.breaker }

func (r *Resilient) Classify(ctx context.Context, page model.PageImage) (*ClassifyResult, error) {
	return guarded(ctx, r, opClassify, func(ctx context.Context) (*ClassifyResult, error) {
		return r.next.Classify(ctx, page)
	})
}

func (r *Resilient) DetectYears(ctx context.Context, page model.PageImage) (*YearsResult, error) {
	return guarded(ctx, r, opYears, func(ctx context.Context) (*YearsResult, error) {
		return r.next.DetectYears(ctx, page)
	})
}

func (r *Resilient) Extract(ctx context.Context, page model.PageImage, req ExtractRequest) (*ExtractResult, error) {
	return guarded(ctx, r, opExtract, func(ctx context.Context) (*ExtractResult, error) {
		return r.next.Extract(ctx, page, req)
	})
}

func guarded[T any](ctx context.Context, r *Resilient, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger(r.next.Name(), op)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, eris.Wrap(err, "provider: rate limit wait")
		}
		return resilience.ExecuteVal(ctx, r.breaker, fn)
	})
}
