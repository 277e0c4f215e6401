package stream

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/internal/telemetry"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/link"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/upstream"
)

// Stream is an ordered, non-restartable sequence of fragments covering one
// byte range. It is not safe for concurrent use. Close must be called.
type Stream struct {
	e    *Engine
	file link.FileHandle
	size int64
	plan chunk.Plan

	next int64 // chunk index of the next fragment
	sent int64
	skip int64 // bytes still to drop from the first fragment

	burst *burst
	err   error

	span    trace.Span
	spanCtx context.Context
	started time.Time
	closed  bool
}

// burst is an open upstream read and the worker that serves it. A stream
// holds at most one.
type burst struct {
	worker *pool.Worker
	cs     upstream.ChunkStream
	next   int64
}

// Total is the number of bytes the stream produces.
func (s *Stream) Total() int64 {
	return s.plan.Total
}

// Sent is the number of bytes produced so far.
func (s *Stream) Sent() int64 {
	return s.sent
}

// Next returns the next fragment, or io.EOF once the range is complete.
// Any other error is final: later calls return it again.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.sent >= s.plan.Total {
		s.closeBurst()
		return nil, io.EOF
	}

	data, hit, err := s.chunkAt(ctx, s.next)
	if err != nil {
		s.fail(ctx, err)
		return nil, err
	}

	frag := data
	if s.skip > 0 {
		if s.skip >= int64(len(frag)) {
			err := fmt.Errorf("%w: chunk %d has %d bytes, need offset %d", ErrShortChunk, s.next, len(frag), s.skip)
			s.fail(ctx, err)
			return nil, err
		}
		frag = frag[s.skip:]
		s.skip = 0
	}
	if remaining := s.plan.Total - s.sent; int64(len(frag)) > remaining {
		frag = frag[:remaining]
	}
	if len(frag) == 0 {
		err := fmt.Errorf("%w: chunk %d is empty", ErrShortChunk, s.next)
		s.fail(ctx, err)
		return nil, err
	}

	s.sent += int64(len(frag))
	s.next++
	if s.sent >= s.plan.Total {
		s.closeBurst()
	}

	if s.e.metrics != nil {
		s.e.metrics.FragmentServed(hit, len(frag))
	}
	return frag, nil
}

// WriteTo copies every remaining fragment to w. Writers with a Flush method
// are flushed after each fragment.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	return s.Copy(s.spanCtx, w)
}

// Copy is WriteTo with an explicit context.
func (s *Stream) Copy(ctx context.Context, w io.Writer) (int64, error) {
	flusher, _ := w.(interface{ Flush() })

	var written int64
	for {
		frag, err := s.Next(ctx)
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, werr := w.Write(frag)
		written += int64(n)
		if werr != nil {
			s.fail(ctx, werr)
			return written, werr
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Close releases the worker, if any, and ends the stream's span. It is
// safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.closeBurst()

	d := time.Since(s.started)
	s.span.SetAttributes(telemetry.Bytes(s.sent))
	if s.err != nil {
		telemetry.RecordError(s.spanCtx, s.err)
	}
	s.span.End()

	if s.e.metrics != nil {
		s.e.metrics.StreamClosed(s.sent, d, s.err)
	}
	logger.DebugCtx(s.spanCtx, "Stream closed",
		logger.Bytes(s.sent),
		logger.DurationMs(float64(d.Microseconds())/1000),
		logger.Err(s.err))
	return nil
}

func (s *Stream) fail(ctx context.Context, err error) {
	s.err = err
	s.closeBurst()
	if ctx.Err() == nil {
		logger.WarnCtx(ctx, "Stream failed",
			logger.ChunkIndex(s.next),
			logger.Bytes(s.sent),
			logger.Err(err))
	}
}

// chunkAt returns the whole chunk idx. An open burst is drained in order;
// otherwise the cache is consulted before going upstream.
func (s *Stream) chunkAt(ctx context.Context, idx int64) ([]byte, bool, error) {
	if s.burst == nil {
		key := chunk.NewKey(s.file.ContainerID, s.file.ItemID, idx)
		if data, ok := s.e.cache.Get(ctx, key); ok && s.validChunk(idx, data) {
			return data, true, nil
		}
	}
	data, err := s.fetch(ctx, idx)
	return data, false, err
}

// validChunk rejects cached entries whose length disagrees with the file
// size, treating them as misses.
func (s *Stream) validChunk(idx int64, data []byte) bool {
	start, end := chunk.Bounds(idx, s.size)
	return int64(len(data)) == end-start
}

// fetch reads chunk idx from upstream, opening a burst when needed, and
// caches it before returning.
func (s *Stream) fetch(ctx context.Context, idx int64) ([]byte, error) {
	r := s.e.newRetrier("fetch", idx)
	for {
		var (
			w   *pool.Worker
			err error
		)
		if s.burst == nil {
			w, err = s.openBurst(ctx, idx)
		}
		if err == nil {
			w = s.burst.worker
			var data []byte
			data, err = s.pull(ctx)
			if err == nil {
				s.e.pool.ReportSuccess(w.ID)
				key := chunk.NewKey(s.file.ContainerID, s.file.ItemID, idx)
				s.e.putChunk(ctx, key, data)
				return data, nil
			}
			s.closeBurst()
		}
		if rerr := r.handle(ctx, w, err); rerr != nil {
			return nil, rerr
		}
	}
}

// openBurst acquires a worker and opens an upstream read at idx. On
// failure the worker is released and returned for failure accounting.
func (s *Stream) openBurst(ctx context.Context, idx int64) (*pool.Worker, error) {
	w, err := s.e.acquire()
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartUpstreamSpan(ctx, "open",
		telemetry.ContainerID(s.file.ContainerID),
		telemetry.ItemID(s.file.ItemID),
		telemetry.ChunkIndex(idx),
		telemetry.WorkerID(w.ID))
	defer span.End()

	var cs upstream.ChunkStream
	err = s.e.call(ctx, "open", func() error {
		var oerr error
		cs, oerr = w.Client.OpenChunkStream(ctx, s.file.ContainerID, s.file.ItemID, idx)
		return oerr
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		s.e.pool.Release(w.ID)
		return w, err
	}

	logger.DebugCtx(ctx, "Upstream read opened",
		logger.ChunkIndex(idx),
		logger.WorkerID(w.ID))
	s.burst = &burst{worker: w, cs: cs, next: idx}
	return w, nil
}

// pull reads the next chunk of the open burst. A chunk shorter than the
// file size implies, or an early end of stream, is an upstream error.
func (s *Stream) pull(ctx context.Context) ([]byte, error) {
	b := s.burst
	var data []byte
	err := s.e.call(ctx, "next", func() error {
		var nerr error
		data, nerr = b.cs.Next(ctx)
		return nerr
	})
	if err == io.EOF {
		return nil, &upstream.RPCError{Op: "next", Detail: fmt.Sprintf("stream ended before chunk %d", b.next)}
	}
	if err != nil {
		return nil, err
	}

	start, end := chunk.Bounds(b.next, s.size)
	if int64(len(data)) != end-start {
		return nil, &upstream.RPCError{
			Op:     "next",
			Detail: fmt.Sprintf("chunk %d has %d bytes, want %d", b.next, len(data), end-start),
		}
	}
	b.next++
	return data, nil
}

func (s *Stream) closeBurst() {
	if s.burst == nil {
		return
	}
	if err := s.burst.cs.Close(); err != nil {
		logger.Debug("Upstream read close failed", logger.WorkerID(s.burst.worker.ID), logger.Err(err))
	}
	s.e.pool.Release(s.burst.worker.ID)
	s.burst = nil
}
