// package retry runs fallible operations with exponential backoff and jitter.
//
// Failures are classified with [shared.KindOf]: network, timeout and server errors are retried,
// everything else (credential, bad request, remote workflow failures, cancellation) returns at once.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/desertthunder/vbx/internal/shared"
)

// Policy configures retries. The zero value runs an operation exactly once.
type Policy struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Delay before the first retry, before jitter
	MaxDelay   time.Duration // Upper bound on the backoff delay, before jitter
	Factor     float64       // Backoff multiplier per attempt

	// Sleep waits for d or until ctx is done. Defaults to a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a fraction in [0.1, 0.3) added on top of the delay. Defaults to math/rand.
	Jitter func() float64
}

// FromConfig builds a Policy from the [retry] config section.
func FromConfig(c shared.RetryConfig) Policy {
	if !c.Enabled {
		return Policy{}
	}
	return Policy{
		MaxRetries: c.MaxRetries,
		BaseDelay:  shared.Seconds(c.BaseDelay),
		MaxDelay:   shared.Seconds(c.MaxDelay),
		Factor:     c.BackoffFactor,
	}
}

// Backoff returns min(base * factor^attempt, max) for the zero-based attempt, without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Delay is [Policy.Backoff] plus 10-30% jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Backoff(attempt)
	return d + time.Duration(float64(d)*p.jitter())
}

// Do runs fn until it succeeds, fails with a non-retryable error, or retries are exhausted.
//
// op names the step in the returned error. When retries run out the error wraps both
// [shared.ErrRetriesExhausted] and the last failure.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return shared.NewError(shared.KindCancelled, op, err)
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !shared.IsRetryable(last) {
			return last
		}
		if attempt >= p.MaxRetries {
			if p.MaxRetries == 0 {
				return last
			}
			return fmt.Errorf("%w: %s after %d attempts: %w", shared.ErrRetriesExhausted, op, attempt+1, last)
		}

		if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
			return last
		}
	}
}

// Value runs fn under p and returns its result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

func (p Policy) jitter() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return 0.1 + rand.Float64()*0.2
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
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
