// Package cache stores immutable file chunks keyed by chunk.Key with a
// byte-capacity bound and least-recently-used eviction.
//
// Implementations never surface storage failures to readers: a chunk that
// cannot be read, or that was evicted, is reported as a miss. Writers get an
// error for logging, but callers are expected to continue without the cache.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/relaystream/pkg/chunk"
)

// ErrTooLarge is returned by Put for a value larger than the whole cache.
var ErrTooLarge = errors.New("cache: value exceeds capacity")

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache: closed")

// Cache is a concurrent chunk store.
type Cache interface {
	// Get returns the chunk stored under key. The returned slice must not be
	// modified by the caller.
	Get(ctx context.Context, key chunk.Key) ([]byte, bool)

	// Put stores data under key. Storing an existing key is a no-op apart
	// from refreshing its recency.
	Put(ctx context.Context, key chunk.Key, data []byte) error

	// Contains reports whether key is currently indexed. The answer may be
	// stale by the time the caller acts on it.
	Contains(ctx context.Context, key chunk.Key) bool

	// Purge removes every entry.
	Purge(ctx context.Context) error

	// Stats returns a snapshot of occupancy and counters.
	Stats() Stats

	// Healthcheck reports whether the backing store is usable.
	Healthcheck(ctx context.Context) error

	Close() error
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Type      string `json:"type"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
	Capacity  int64  `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Metrics receives cache observations. A nil Metrics is valid and records
// nothing.
type Metrics interface {
	ObserveGet(hit bool, bytes int, d time.Duration)
	ObservePut(bytes int, d time.Duration)
	RecordEvictions(n int)
	RecordSize(entries int, bytes int64)
}

// ObserveGet records a lookup that started at start.
func ObserveGet(m Metrics, hit bool, bytes int, start time.Time) {
	if m != nil {
		m.ObserveGet(hit, bytes, time.Since(start))
	}
}

// ObservePut records a store that started at start.
func ObservePut(m Metrics, bytes int, start time.Time) {
	if m != nil {
		m.ObservePut(bytes, time.Since(start))
	}
}

func RecordEvictions(m Metrics, n int) {
	if m != nil && n > 0 {
		m.RecordEvictions(n)
	}
}

func RecordSize(m Metrics, entries int, bytes int64) {
	if m != nil {
		m.RecordSize(entries, bytes)
	}
}
