package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields for one HTTP call.
type LogContext struct {
	TraceID     string
	SpanID      string
	RequestID   string
	Route       string // stream, download, subtitle, details, play, admin
	ClientIP    string
	ContainerID int64
	ItemID      int64
	HasFile     bool // ContainerID/ItemID are set once the link is decoded
	StartTime   time.Time
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext stored in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a request from clientIP.
func NewLogContext(clientIP, requestID string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		RequestID: requestID,
		StartTime: time.Now(),
	}
}

// Clone returns a copy of lc. A nil receiver yields nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithRoute returns a copy with the route set.
func (lc *LogContext) WithRoute(route string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Route = route
	}
	return c
}

// WithFile returns a copy bound to a decoded file handle.
func (lc *LogContext) WithFile(containerID, itemID int64) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.ContainerID = containerID
		c.ItemID = itemID
		c.HasFile = true
	}
	return c
}

// WithTrace returns a copy with trace info set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns milliseconds since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
