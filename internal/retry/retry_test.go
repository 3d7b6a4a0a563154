package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/vbx/internal/shared"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testPolicy(sleeper *recordingSleep) Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Factor:     2,
		Sleep:      sleeper.Sleep,
		Jitter:     func() float64 { return 0.2 },
	}
}

func TestPolicyDo(t *testing.T) {
	t.Run("retryable error exhausts after max retries plus one", func(t *testing.T) {
		sleeper := &recordingSleep{}
		p := testPolicy(sleeper)

		calls := 0
		netErr := shared.NewError(shared.KindNetwork, "submit", errors.New("connection reset"))
		err := p.Do(context.Background(), "submit", func(ctx context.Context) error {
			calls++
			return netErr
		})

		if calls != 4 {
			t.Errorf("expected 4 calls, got %d", calls)
		}
		if !errors.Is(err, shared.ErrRetriesExhausted) {
			t.Errorf("expected ErrRetriesExhausted, got %v", err)
		}
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected last failure to be wrapped, got %v", err)
		}
		if shared.IsRetryable(err) {
			t.Error("exhausted error should be terminal")
		}
		if len(sleeper.delays) != 3 {
			t.Errorf("expected 3 sleeps, got %d", len(sleeper.delays))
		}
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		tc := []struct {
			name string
			err  error
		}{
			{name: "remote workflow", err: shared.NewError(shared.KindRemoteWorkflow, "poll", nil)},
			{name: "credential", err: shared.NewError(shared.KindCredential, "token", nil)},
			{name: "bad request", err: shared.NewError(shared.KindBadRequest, "submit", nil)},
			{name: "unclassified", err: errors.New("boom")},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				sleeper := &recordingSleep{}
				calls := 0
				err := testPolicy(sleeper).Do(context.Background(), "op", func(ctx context.Context) error {
					calls++
					return tt.err
				})
				if calls != 1 {
					t.Errorf("expected 1 call, got %d", calls)
				}
				if !errors.Is(err, tt.err) {
					t.Errorf("expected original error, got %v", err)
				}
				if len(sleeper.delays) != 0 {
					t.Errorf("expected no sleeps, got %v", sleeper.delays)
				}
			})
		}
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		sleeper := &recordingSleep{}
		calls := 0
		got, err := Value(context.Background(), testPolicy(sleeper), "download", func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", shared.NewError(shared.KindServer, "download", errors.New("503"))
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ok" || calls != 3 {
			t.Errorf("got %q after %d calls", got, calls)
		}
	})

	t.Run("zero policy runs once", func(t *testing.T) {
		calls := 0
		err := Policy{}.Do(context.Background(), "op", func(ctx context.Context) error {
			calls++
			return shared.NewError(shared.KindTimeout, "op", nil)
		})
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if errors.Is(err, shared.ErrRetriesExhausted) {
			t.Error("a single attempt should return the raw error")
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		p := Policy{MaxRetries: 5, BaseDelay: time.Millisecond, Factor: 2, Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}}
		err := p.Do(ctx, "poll", func(ctx context.Context) error {
			calls++
			return shared.NewError(shared.KindNetwork, "poll", nil)
		})
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected last failure, got %v", err)
		}
	})
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Factor: 2}

	backoffs := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for attempt, want := range backoffs {
		if got := p.Backoff(attempt); got != want {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}

	for attempt := range 6 {
		base := p.Backoff(attempt)
		lo, hi := base+base/10-time.Microsecond, base+base*3/10
		for range 50 {
			if d := p.Delay(attempt); d < lo || d > hi {
				t.Fatalf("Delay(%d) = %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(shared.RetryConfig{Enabled: true, MaxRetries: 3, BaseDelay: 2, MaxDelay: 30, BackoffFactor: 2})
	if p.MaxRetries != 3 || p.BaseDelay != 2*time.Second || p.MaxDelay != 30*time.Second || p.Factor != 2 {
		t.Errorf("unexpected policy %+v", p)
	}
	if disabled := FromConfig(shared.RetryConfig{MaxRetries: 3}); disabled.MaxRetries != 0 {
		t.Error("disabled retry config should produce a single-attempt policy")
	}
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero sleep should return nil, got %v", err)
	}
}
