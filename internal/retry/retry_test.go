package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "github-trending/internal/errors"
)

type resetErr struct {
	*custom_errors.UpstreamError
	at time.Time
}

func (e resetErr) ResetAt() time.Time { return e.at }

func newTestPolicy(waits *[]time.Duration) Policy {
	return Policy{
		RateLimitBase: 60 * time.Second,
		TransientBase: 10 * time.Second,
		Max:           100 * time.Second,
		MaxAttempts:   5,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep: func(_ context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		},
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestPolicy_Do(t *testing.T) {
	ctx := context.Background()
	transientErr := &custom_errors.UpstreamError{Kind: custom_errors.ErrTransient, Op: "search"}
	rateErr := &custom_errors.UpstreamError{Kind: custom_errors.ErrRateLimited, Op: "search"}

	t.Run("succeeds on first try", func(t *testing.T) {
		var waits []time.Duration
		calls := 0
		err := newTestPolicy(&waits).Do(ctx, "search", func(context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, waits)
	})

	t.Run("backs off exponentially on transient errors", func(t *testing.T) {
		var waits []time.Duration
		calls := 0
		err := newTestPolicy(&waits).Do(ctx, "search", func(context.Context) error {
			calls++
			if calls < 4 {
				return transientErr
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second}, waits)
	})

	t.Run("rate limit backoff is capped", func(t *testing.T) {
		var waits []time.Duration
		calls := 0
		err := newTestPolicy(&waits).Do(ctx, "search", func(context.Context) error {
			calls++
			if calls < 4 {
				return rateErr
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{60 * time.Second, 100 * time.Second, 100 * time.Second}, waits)
	})

	t.Run("waits for the upstream reset when it is later", func(t *testing.T) {
		var waits []time.Duration
		p := newTestPolicy(&waits)
		p.Max = time.Hour
		calls := 0
		err := p.Do(ctx, "search", func(context.Context) error {
			calls++
			if calls == 1 {
				return resetErr{UpstreamError: rateErr, at: p.Now().Add(5 * time.Minute)}
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []time.Duration{5*time.Minute + time.Second}, waits)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var waits []time.Duration
		calls := 0
		err := newTestPolicy(&waits).Do(ctx, "search", func(context.Context) error {
			calls++
			return transientErr
		})

		var gaveUp *custom_errors.GaveUpError
		require.ErrorAs(t, err, &gaveUp)
		assert.Equal(t, 5, gaveUp.Attempts)
		assert.Equal(t, 5, calls)
		assert.Len(t, waits, 4)
		assert.ErrorIs(t, err, custom_errors.ErrTransient)
	})

	t.Run("returns non-retryable errors immediately", func(t *testing.T) {
		var waits []time.Duration
		calls := 0
		tooLarge := &custom_errors.UpstreamError{Kind: custom_errors.ErrTooLarge}
		err := newTestPolicy(&waits).Do(ctx, "contributors", func(context.Context) error {
			calls++
			return tooLarge
		})

		assert.Same(t, tooLarge, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, waits)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		var waits []time.Duration
		p := newTestPolicy(&waits)
		cctx, cancel := context.WithCancel(ctx)
		p.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}

		err := p.Do(cctx, "search", func(context.Context) error { return transientErr })

		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
