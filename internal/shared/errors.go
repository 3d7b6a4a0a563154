package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Batch setup errors
	ErrEmptyBatch       = fmt.Errorf("job batch is empty")
	ErrNoAccounts       = fmt.Errorf("no accounts configured")
	ErrRetriesExhausted = fmt.Errorf("retries exhausted")

	// Pipeline error kinds, matched by [Error.Is]
	ErrCredential     = fmt.Errorf("credential rejected")
	ErrNetwork        = fmt.Errorf("network failure")
	ErrTimeout        = fmt.Errorf("operation timed out")
	ErrServer         = fmt.Errorf("remote server error")
	ErrBadRequest     = fmt.Errorf("request rejected")
	ErrRemoteWorkflow = fmt.Errorf("remote workflow failed")
	ErrPollTimeout    = fmt.Errorf("poll deadline exceeded")
	ErrCleanup        = fmt.Errorf("cleanup failed")
	ErrUserCancelled  = fmt.Errorf("cancelled by user")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrNotFound        = fmt.Errorf("not found")
)

// ErrorKind classifies a failure for retry and reporting decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCredential
	KindNetwork
	KindTimeout
	KindServer
	KindBadRequest
	KindRemoteWorkflow
	KindPollTimeout
	KindCleanup
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindCredential:
		return "credential"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindBadRequest:
		return "bad_request"
	case KindRemoteWorkflow:
		return "remote_workflow"
	case KindPollTimeout:
		return "poll_timeout"
	case KindCleanup:
		return "cleanup"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind are transient.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout || k == KindServer
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindCredential:
		return ErrCredential
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindServer:
		return ErrServer
	case KindBadRequest:
		return ErrBadRequest
	case KindRemoteWorkflow:
		return ErrRemoteWorkflow
	case KindPollTimeout:
		return ErrPollTimeout
	case KindCleanup:
		return ErrCleanup
	case KindCancelled:
		return ErrUserCancelled
	default:
		return nil
	}
}

// Error is a kinded failure raised by a remote call or pipeline step.
type Error struct {
	Kind ErrorKind
	Op   string // Operation that failed, e.g. "submit" or "poll"
	Err  error  // Underlying cause, may be nil
}

// NewError builds an [Error] of kind k for operation op.
func NewError(k ErrorKind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf builds an [Error] with a formatted cause.
func Errorf(k ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind so callers can use errors.Is(err, ErrPollTimeout).
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// KindOf classifies err. Explicit [Error] values win over the underlying cause.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var kinded *Error
	if errors.As(err, &kinded) {
		return kinded.Kind
	}

	switch {
	case errors.Is(err, ErrUserCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient failure. Errors that already exhausted their retries are terminal.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	return KindOf(err).Retryable()
}
