package logger

import (
	"log/slog"
	"time"
)

// Standard field keys. Use them consistently so log queries work across
// the HTTP layer, the streaming engine and the upstream clients.
const (
	// ========================================================================
	// Tracing & request
	// ========================================================================
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyRequestID = "request_id"
	KeyRoute     = "route"
	KeyClientIP  = "client_ip"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"

	// ========================================================================
	// File & range
	// ========================================================================
	KeyContainerID = "container_id"
	KeyItemID      = "item_id"
	KeyFilename    = "file_name"
	KeySize        = "size"
	KeyRangeStart  = "range_start"
	KeyRangeEnd    = "range_end"
	KeyBytes       = "bytes"
	KeyChunkIndex  = "chunk_index"

	// ========================================================================
	// Upstream & workers
	// ========================================================================
	KeyWorkerID    = "worker_id"
	KeyAttempt     = "attempt"
	KeyMaxAttempts = "max_attempts"
	KeyWait        = "wait"
	KeyBucket      = "bucket"
	KeyKey         = "key"
	KeyUpstream    = "upstream"

	// ========================================================================
	// Cache
	// ========================================================================
	KeyCacheHit      = "cache_hit"
	KeyCacheSize     = "cache_size"
	KeyCacheCapacity = "cache_capacity"
	KeyEvicted       = "evicted"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ContainerID returns a slog.Attr for a file's container id
func ContainerID(id int64) slog.Attr {
	return slog.Int64(KeyContainerID, id)
}

// ItemID returns a slog.Attr for a file's item id
func ItemID(id int64) slog.Attr {
	return slog.Int64(KeyItemID, id)
}

func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// Range returns the inclusive byte range of a stream as two attributes
// grouped under "range".
func Range(start, end int64) slog.Attr {
	return slog.Group("range", slog.Int64("start", start), slog.Int64("end", end))
}

func Bytes(n int64) slog.Attr {
	return slog.Int64(KeyBytes, n)
}

func ChunkIndex(i int64) slog.Attr {
	return slog.Int64(KeyChunkIndex, i)
}

func WorkerID(id int) slog.Attr {
	return slog.Int(KeyWorkerID, id)
}

// Attempt returns a slog.Attr for a 1-based retry attempt
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

func MaxAttempts(n int) slog.Attr {
	return slog.Int(KeyMaxAttempts, n)
}

func Wait(d time.Duration) slog.Attr {
	return slog.Duration(KeyWait, d)
}

func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Err returns a slog.Attr for an error. A nil error yields an empty Attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
