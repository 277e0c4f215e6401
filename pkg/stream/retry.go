package stream

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/internal/telemetry"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/upstream"
)

// retrier decides what happens after a failed upstream call.
//
//   - rate limited: cool the worker down, sleep the mandated wait, retry.
//     The attempt budget is untouched.
//   - no worker: wait for the soonest cooldown to end (at most
//     WorkerWaitDelay), up to WorkerWaitAttempts times.
//   - not found, caller cancellation: returned as is.
//   - anything else: counts against MaxAttempts with RetryDelay between
//     attempts; the last failure becomes a FatalError. Only that last
//     failure is reported to the pool, so a worker's failure threshold
//     counts exhausted budgets and never shortens one.
type retrier struct {
	e        *Engine
	op       string
	chunk    int64
	attempts int
	waits    int
}

func (e *Engine) newRetrier(op string, chunkIdx int64) *retrier {
	return &retrier{e: e, op: op, chunk: chunkIdx}
}

// handle returns nil when the call should be retried. w is the worker the
// call ran on, nil if none was acquired.
func (r *retrier) handle(ctx context.Context, w *pool.Worker, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}

	if errors.Is(err, ErrWorkerUnavailable) {
		return r.waitForWorker(ctx, err)
	}

	if wait, ok := upstream.RateLimitWait(err); ok {
		if w != nil {
			r.e.pool.CooldownFor(w.ID, wait)
		}
		r.record(ctx, w, err, wait)
		return r.e.sleep(ctx, wait)
	}

	if errors.Is(err, upstream.ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}

	r.attempts++
	if r.attempts >= r.e.cfg.MaxAttempts {
		if w != nil {
			r.e.pool.ReportFailure(w.ID)
		}
		fatal := &FatalError{Op: r.op, Chunk: r.chunk, Attempts: r.attempts, Err: err}
		logger.ErrorCtx(ctx, "Upstream retry budget exhausted",
			logger.ChunkIndex(r.chunk),
			logger.Attempt(r.attempts),
			logger.MaxAttempts(r.e.cfg.MaxAttempts),
			"op", r.op,
			logger.Err(err))
		return fatal
	}
	r.record(ctx, w, err, r.e.cfg.RetryDelay)
	return r.e.sleep(ctx, r.e.cfg.RetryDelay)
}

func (r *retrier) waitForWorker(ctx context.Context, err error) error {
	r.waits++
	if r.waits > r.e.cfg.WorkerWaitAttempts {
		return &FatalError{Op: r.op, Chunk: r.chunk, Attempts: r.waits - 1, Err: err}
	}

	wait := r.e.pool.NextAvailable()
	if wait > r.e.cfg.WorkerWaitDelay {
		wait = r.e.cfg.WorkerWaitDelay
	}
	if r.waits == 1 {
		logger.WarnCtx(ctx, "All workers cooling down, waiting",
			logger.ChunkIndex(r.chunk),
			logger.Wait(wait),
			"op", r.op)
	}
	if r.e.metrics != nil {
		r.e.metrics.Retry(r.op, "worker_unavailable")
	}
	return r.e.sleep(ctx, wait)
}

func (r *retrier) record(ctx context.Context, w *pool.Worker, err error, wait time.Duration) {
	kind := upstream.Kind(err)
	args := []any{
		logger.ChunkIndex(r.chunk),
		logger.Attempt(r.attempts),
		logger.MaxAttempts(r.e.cfg.MaxAttempts),
		logger.Wait(wait),
		"op", r.op,
		"kind", kind,
		logger.Err(err),
	}
	if w != nil {
		args = append(args, logger.WorkerID(w.ID))
	}
	logger.WarnCtx(ctx, "Upstream call failed, retrying", args...)

	telemetry.AddEvent(ctx, "upstream.retry",
		telemetry.ErrKind(kind),
		telemetry.Attempt(r.attempts),
		telemetry.ChunkIndex(r.chunk))
	if r.e.metrics != nil {
		r.e.metrics.Retry(r.op, kind)
	}
}
