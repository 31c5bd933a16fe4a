package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/resilience"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestBreakerTransitions(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	breaker := resilience.NewBreaker("postgres", 2, 0.5, time.Minute).WithClock(clk.Now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))

	clk.now = clk.now.Add(time.Minute)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")

	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	require.Equal(t, base, resilience.Backoff(base, 1, 0))
	require.Equal(t, base*4, resilience.Backoff(base, 3, 0))

	d := resilience.Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}

var errDown = errors.New("connection refused")

func TestGuardRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	g := resilience.Guard{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestGuardExpectedErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	errMissing := errors.New("missing")
	breaker := resilience.NewBreaker("postgres", 1, 0.5, time.Minute)
	g := resilience.Guard{
		Breaker:     breaker,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Expected:    func(err error) bool { return errors.Is(err, errMissing) },
	}

	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		return errMissing
	})
	require.ErrorIs(t, err, errMissing)
	require.Equal(t, 1, calls)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestGuardFailsFastWhenOpen(t *testing.T) {
	t.Parallel()

	breaker := resilience.NewBreaker("postgres", 1, 0.5, time.Minute)
	g := resilience.Guard{Breaker: breaker, MaxAttempts: 1}

	require.ErrorIs(t, g.Do(context.Background(), func(context.Context) error { return errDown }), errDown)
	calls := 0
	err := g.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Zero(t, calls)
}
