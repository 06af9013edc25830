// Package retrypolicy implements the no_wait persister's bounded-backoff
// retry loop. Grounded directly on the teacher's internal/drivers/retry.go
// (RetryPolicy/RetryOption functional options, exponential backoff with
// jitter), narrowed to the Execute surface the persister
// needs — the teacher's RetryableDriver wrapper has no analogue here since
// this domain has no pluggable storage Driver interface.
package retrypolicy

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Policy is a bounded exponential-backoff-with-jitter retry policy.
type Policy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       bool
	logger       *zap.Logger
	limiter      *rate.Limiter
}

// Option configures a Policy.
type Option func(*Policy)

func WithMaxAttempts(n int) Option         { return func(p *Policy) { p.maxAttempts = n } }
func WithInitialDelay(d time.Duration) Option { return func(p *Policy) { p.initialDelay = d } }
func WithMaxDelay(d time.Duration) Option   { return func(p *Policy) { p.maxDelay = d } }
func WithJitter(enabled bool) Option       { return func(p *Policy) { p.jitter = enabled } }
func WithLogger(logger *zap.Logger) Option { return func(p *Policy) { p.logger = logger } }

// WithRateLimiter paces every attempt (including the first) through l,
// capping the aggregate attempt rate across every caller sharing this
// Policy — distinct from the per-attempt exponential delay below, which
// only spaces out retries within a single Execute call. Used by the
// no_wait persister (many partitions, one shared Policy) so a burst of
// failures across the process can't turn into an unbounded retry storm.
func WithRateLimiter(l *rate.Limiter) Option { return func(p *Policy) { p.limiter = l } }

// New builds a Policy with the given options, defaulting to 5 attempts,
// 100ms initial delay, 30s cap, doubling, with jitter — matching the
// teacher's NewRetryPolicy defaults except maxAttempts, raised from 3 to 5
// since the persister's failure mode (durability failure recorded, message
// not lost) is more tolerant of extra attempts than a foreground request.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts:  5,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2.0,
		jitter:       true,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs fn, retrying with exponential backoff until it succeeds, the
// attempt budget is exhausted, or ctx is cancelled. Returns the last error
// on exhaustion.
func (p *Policy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		if err := fn(); err == nil {
			if attempt > 0 {
				p.logger.Debug("operation succeeded after retry",
					zap.Int("attempt", attempt+1), zap.Int("maxAttempts", p.maxAttempts))
			}
			return nil
		} else {
			lastErr = err
		}

		if attempt == p.maxAttempts-1 {
			break
		}

		delay := p.calculateDelay(attempt)
		p.logger.Debug("operation failed, retrying",
			zap.Error(lastErr), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.logger.Error("operation failed after all retries",
		zap.Error(lastErr), zap.Int("attempts", p.maxAttempts))
	return lastErr
}

func (p *Policy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	if p.jitter {
		jitter := 0.5 + rand.Float64()
		delay = delay * jitter
	}
	return time.Duration(delay)
}

// MaxAttempts exposes the configured attempt budget, e.g. for telemetry.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }
