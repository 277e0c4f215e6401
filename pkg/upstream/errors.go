package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means the container or item does not exist.
	ErrNotFound = errors.New("upstream: not found")

	// ErrTimedOut means the backend did not answer in time. Retryable.
	ErrTimedOut = errors.New("upstream: timed out")
)

// RateLimitedError means the credential hit the backend's rate limit and
// must wait before the next call. Retryable after Wait.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("upstream: rate limited, retry after %s", e.Wait)
}

// RPCError is any other backend failure. Retryable.
type RPCError struct {
	Op     string
	Detail string
	Err    error
}

func (e *RPCError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// RateLimitWait returns the mandated wait if err is a rate-limit signal.
func RateLimitWait(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Wait, true
	}
	return 0, false
}

// IsTransient reports whether a call that failed with err may succeed if
// retried. Not-found and caller cancellation are permanent.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	if _, ok := RateLimitWait(err); ok {
		return true
	}
	if errors.Is(err, ErrTimedOut) {
		return true
	}
	var rpc *RPCError
	return errors.As(err, &rpc)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := RateLimitWait(err); ok {
		return "rate_limited"
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimedOut):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var rpc *RPCError
	if errors.As(err, &rpc) {
		return "rpc_error"
	}
	return "other"
}
