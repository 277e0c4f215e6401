package upstream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	rl := &RateLimitedError{Wait: 2 * time.Second}
	rpc := &RPCError{Op: "get", Detail: "FLOOD"}

	tests := []struct {
		name      string
		err       error
		transient bool
		kind      string
	}{
		{"nil", nil, false, "ok"},
		{"not found", fmt.Errorf("lookup: %w", ErrNotFound), false, "not_found"},
		{"canceled", context.Canceled, false, "canceled"},
		{"timeout", ErrTimedOut, true, "timeout"},
		{"rate limited", fmt.Errorf("wrapped: %w", rl), true, "rate_limited"},
		{"rpc", rpc, true, "rpc_error"},
		{"other", errors.New("boom"), false, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.kind, Kind(tt.err))
		})
	}

	wait, ok := RateLimitWait(fmt.Errorf("x: %w", rl))
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)
}

func TestRPCErrorMessage(t *testing.T) {
	assert.Equal(t, "upstream get: FLOOD", (&RPCError{Op: "get", Detail: "FLOOD"}).Error())

	inner := errors.New("connection reset")
	e := &RPCError{Op: "read", Err: inner}
	assert.Equal(t, "upstream read: connection reset", e.Error())
	assert.ErrorIs(t, e, inner)
}
