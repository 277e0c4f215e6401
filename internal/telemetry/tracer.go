package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for stream, cache and upstream spans.
const (
	AttrClientIP = "client.ip"
	AttrRoute    = "http.route"

	AttrContainerID = "media.container_id"
	AttrItemID      = "media.item_id"
	AttrFileSize    = "media.size"

	AttrRangeStart = "stream.range_start"
	AttrRangeEnd   = "stream.range_end"
	AttrChunkIndex = "stream.chunk_index"
	AttrBytes      = "stream.bytes"

	AttrCacheHit = "cache.hit"

	AttrWorkerID = "upstream.worker_id"
	AttrAttempt  = "upstream.attempt"
	AttrErrKind  = "upstream.error_kind"
)

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func Route(route string) attribute.KeyValue {
	return attribute.String(AttrRoute, route)
}

func ContainerID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrContainerID, id)
}

func ItemID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrItemID, id)
}

func FileSize(n int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, n)
}

func RangeStart(n int64) attribute.KeyValue {
	return attribute.Int64(AttrRangeStart, n)
}

func RangeEnd(n int64) attribute.KeyValue {
	return attribute.Int64(AttrRangeEnd, n)
}

func ChunkIndex(i int64) attribute.KeyValue {
	return attribute.Int64(AttrChunkIndex, i)
}

func Bytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}

func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

func WorkerID(id int) attribute.KeyValue {
	return attribute.Int(AttrWorkerID, id)
}

func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

func ErrKind(kind string) attribute.KeyValue {
	return attribute.String(AttrErrKind, kind)
}

// StartStreamSpan starts the span covering one ranged stream.
func StartStreamSpan(ctx context.Context, containerID, itemID, start, end int64) (context.Context, trace.Span) {
	return StartSpan(ctx, "stream.serve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			ContainerID(containerID),
			ItemID(itemID),
			RangeStart(start),
			RangeEnd(end),
		))
}

// StartUpstreamSpan starts a client span for a call to the backend.
func StartUpstreamSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "upstream."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}
