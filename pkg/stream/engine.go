// Package stream maps byte ranges of remote files onto fixed-size chunks.
//
// A Stream yields the bytes of one range in order. Each chunk comes from the
// chunk cache when present; otherwise a worker is acquired from the pool and
// an upstream read is opened at that chunk. Every chunk the upstream returns
// is written to the cache before it is handed to the caller. The first
// fragment is trimmed to the range start and the last to the range end.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/internal/telemetry"
	"github.com/marmos91/relaystream/pkg/cache"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/link"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/upstream"
)

// Metrics receives engine observations. A nil Metrics records nothing.
type Metrics interface {
	StreamOpened()
	StreamClosed(bytes int64, d time.Duration, err error)
	FragmentServed(fromCache bool, bytes int)
	UpstreamCall(op string, err error, d time.Duration)
	Retry(op, kind string)
}

// Engine is shared by all streams. It holds no per-request state.
type Engine struct {
	cfg     Config
	cache   cache.Cache
	pool    *pool.Pool
	limiter *semaphore.Weighted
	meta    *expirable.LRU[link.FileHandle, upstream.FileInfo]
	group   singleflight.Group
	metrics Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSleep replaces the context-aware sleep used between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// New builds an engine over a cache and a worker pool.
func New(c cache.Cache, p *pool.Pool, cfg Config, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, errors.New("stream: cache is required")
	}
	if p == nil {
		return nil, errors.New("stream: worker pool is required")
	}
	cfg.applyDefaults()

	e := &Engine{
		cfg:     cfg,
		cache:   c,
		pool:    p,
		limiter: semaphore.NewWeighted(int64(cfg.MaxConcurrentFetches)),
		meta:    expirable.NewLRU[link.FileHandle, upstream.FileInfo](cfg.MetadataCacheSize, nil, cfg.MetadataCacheTTL),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Stat returns the file's metadata. Results are memoized and concurrent
// lookups of the same file share one upstream call.
func (e *Engine) Stat(ctx context.Context, fh link.FileHandle) (upstream.FileInfo, error) {
	if info, ok := e.meta.Get(fh); ok {
		return info, nil
	}

	ch := e.group.DoChan(fh.String(), func() (any, error) {
		// Shared by every waiter, so one caller leaving must not cancel it.
		info, err := e.fetchMetadata(context.WithoutCancel(ctx), fh)
		if err != nil {
			return upstream.FileInfo{}, err
		}
		e.meta.Add(fh, info)
		return info, nil
	})

	select {
	case <-ctx.Done():
		return upstream.FileInfo{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return upstream.FileInfo{}, res.Err
		}
		return res.Val.(upstream.FileInfo), nil
	}
}

// Forget drops the memoized metadata of a file.
func (e *Engine) Forget(fh link.FileHandle) {
	e.meta.Remove(fh)
}

func (e *Engine) fetchMetadata(ctx context.Context, fh link.FileHandle) (upstream.FileInfo, error) {
	ctx, span := telemetry.StartUpstreamSpan(ctx, "metadata",
		telemetry.ContainerID(fh.ContainerID), telemetry.ItemID(fh.ItemID))
	defer span.End()

	r := e.newRetrier("metadata", -1)
	for {
		w, err := e.acquire()
		if err == nil {
			var info upstream.FileInfo
			err = e.call(ctx, "metadata", func() error {
				var ferr error
				info, ferr = w.Client.FetchMetadata(ctx, fh.ContainerID, fh.ItemID)
				return ferr
			})
			e.pool.Release(w.ID)
			if err == nil {
				e.pool.ReportSuccess(w.ID)
				return info, nil
			}
		}
		if rerr := r.handle(ctx, w, err); rerr != nil {
			telemetry.RecordError(ctx, rerr)
			return upstream.FileInfo{}, rerr
		}
	}
}

// Request names a byte range of a file whose size is already known.
type Request struct {
	File  link.FileHandle
	Start int64
	End   int64 // inclusive
	Size  int64
}

// Open prepares a stream for req. No upstream call is made until Next.
func (e *Engine) Open(ctx context.Context, req Request) (*Stream, error) {
	if req.Start < 0 || req.Start > req.End || req.End >= req.Size {
		return nil, ErrInvalidRange
	}

	ctx, span := telemetry.StartStreamSpan(ctx, req.File.ContainerID, req.File.ItemID, req.Start, req.End)
	plan := chunk.PlanRange(req.Start, req.End)

	logger.DebugCtx(ctx, "Stream opened",
		logger.ContainerID(req.File.ContainerID),
		logger.ItemID(req.File.ItemID),
		logger.Range(req.Start, req.End),
		logger.ChunkIndex(plan.FirstChunk),
		"skip", plan.Skip,
		"total", plan.Total)

	if e.metrics != nil {
		e.metrics.StreamOpened()
	}

	return &Stream{
		e:       e,
		file:    req.File,
		size:    req.Size,
		plan:    plan,
		next:    plan.FirstChunk,
		skip:    plan.Skip,
		span:    span,
		spanCtx: ctx,
		started: time.Now(),
	}, nil
}

// acquire takes a worker from the pool or reports ErrWorkerUnavailable.
func (e *Engine) acquire() (*pool.Worker, error) {
	w := e.pool.Acquire()
	if w == nil {
		return nil, ErrWorkerUnavailable
	}
	return w, nil
}

// call runs one upstream call inside the global fetch limiter.
func (e *Engine) call(ctx context.Context, op string, fn func() error) error {
	if err := e.limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	e.limiter.Release(1)

	if e.metrics != nil {
		e.metrics.UpstreamCall(op, err, time.Since(start))
	}
	return err
}

func (e *Engine) putChunk(ctx context.Context, key chunk.Key, data []byte) {
	if err := e.cache.Put(ctx, key, data); err != nil {
		logger.DebugCtx(ctx, "Chunk not cached",
			logger.ChunkIndex(key.Index),
			logger.Bytes(int64(len(data))),
			logger.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
