// Package retry re-runs upstream calls that fail with a rate-limit or
// transient error, backing off exponentially up to a ceiling.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	custom_errors "github-trending/internal/errors"
)

// ResetHinter is implemented by errors that know when the upstream limit resets.
type ResetHinter interface {
	ResetAt() time.Time
}

// Policy configures retries. Zero-value fields fall back to the defaults below.
type Policy struct {
	RateLimitBase time.Duration
	TransientBase time.Duration
	Max           time.Duration
	MaxAttempts   int
	Logger        *slog.Logger

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now is used to turn reset hints into durations.
	Now func() time.Time
}

const (
	defaultRateLimitBase = 60 * time.Second
	defaultTransientBase = 10 * time.Second
	defaultMax           = 10 * time.Minute
	defaultMaxAttempts   = 8
)

// Do calls fn until it succeeds, returns a non-retryable error, or runs out
// of attempts. The attempt budget is shared across error classes.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	rateLimited := p.newBackOff(p.RateLimitBase)
	transient := p.newBackOff(p.TransientBase)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !custom_errors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxAttempts {
			return &custom_errors.GaveUpError{Op: op, Attempts: attempt, Err: lastErr}
		}

		var wait time.Duration
		if errors.Is(lastErr, custom_errors.ErrRateLimited) {
			wait = rateLimited.NextBackOff()
			var hint ResetHinter
			if errors.As(lastErr, &hint) {
				if untilReset := hint.ResetAt().Sub(p.Now()) + time.Second; untilReset > wait {
					wait = min(untilReset, p.Max)
				}
			}
		} else {
			wait = transient.NextBackOff()
		}

		p.Logger.Warn("Retrying upstream call", "op", op, "attempt", attempt, "wait", wait.String(), "error", lastErr)
		if err := p.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (p Policy) withDefaults() Policy {
	if p.RateLimitBase <= 0 {
		p.RateLimitBase = defaultRateLimitBase
	}
	if p.TransientBase <= 0 {
		p.TransientBase = defaultTransientBase
	}
	if p.Max <= 0 {
		p.Max = defaultMax
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

func (p Policy) newBackOff(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts instead
	b.Reset()
	return b
}

// Sleep pauses for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
