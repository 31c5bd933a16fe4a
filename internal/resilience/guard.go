package resilience

import (
	"context"
	"errors"
	"time"
)

// Guard runs store calls through a breaker with bounded retries.
type Guard struct {
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Expected marks errors that are answers, not outages, such as "not found".
	// They are returned at once and count as successes.
	Expected func(error) bool
}

// Do calls fn until it succeeds, returns an expected error, the attempts are
// exhausted or ctx ends.
func (g Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if g.Breaker != nil && !g.Breaker.Allow(ctx) {
			if err != nil {
				return errors.Join(ErrOpenCircuit, err)
			}
			return ErrOpenCircuit
		}
		err = fn(ctx)
		ok := err == nil || (g.Expected != nil && g.Expected(err))
		if g.Breaker != nil {
			g.Breaker.Report(ctx, ok)
		}
		if ok || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(g.BaseBackoff, attempt, g.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
	return err
}
