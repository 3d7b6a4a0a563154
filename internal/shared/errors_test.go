package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestKindOf(t *testing.T) {
	tc := []struct {
		name      string
		err       error
		want      ErrorKind
		retryable bool
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "kinded server", err: NewError(KindServer, "submit", errors.New("502")), want: KindServer, retryable: true},
		{name: "wrapped kinded", err: fmt.Errorf("step: %w", NewError(KindCredential, "token", nil)), want: KindCredential},
		{name: "remote workflow", err: Errorf(KindRemoteWorkflow, "poll", "status %s", "FAILED"), want: KindRemoteWorkflow},
		{name: "context cancelled", err: context.Canceled, want: KindCancelled},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: KindTimeout, retryable: true},
		{name: "net timeout", err: timeoutErr{}, want: KindTimeout, retryable: true},
		{name: "url error", err: &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, want: KindNetwork, retryable: true},
		{name: "plain error", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestError(t *testing.T) {
	t.Run("Is matches kind sentinel", func(t *testing.T) {
		err := fmt.Errorf("job 3: %w", NewError(KindPollTimeout, "poll", nil))
		if !errors.Is(err, ErrPollTimeout) {
			t.Error("expected errors.Is to match ErrPollTimeout")
		}
		if errors.Is(err, ErrRemoteWorkflow) {
			t.Error("did not expect ErrRemoteWorkflow")
		}
	})

	t.Run("Unwrap exposes cause", func(t *testing.T) {
		cause := errors.New("disk full")
		err := NewError(KindCleanup, "delete", cause)
		if !errors.Is(err, cause) {
			t.Error("expected cause to be reachable")
		}
	})

	t.Run("message", func(t *testing.T) {
		err := NewError(KindCredential, "resolve token", errors.New("session expired"))
		want := "resolve token: credential rejected: session expired"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})
}
