// Package dispatcher runs handler.Handler instances on a fixed pool of
// worker goroutines, grouped into named queues with bounded capacity,
// with admission control and one-shot cleanup semantics around each Job.
package dispatcher

import (
	"context"
	"sync/atomic"

	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/obslog"
)

// SignalFunc is called once a Job finishes (unless its owner called
// BeginCleanup first), with its result, so the owning
// comm task (or async job entry) can pick the result back up. It is the Go
// realization of the cross-goroutine Job->CommTask signal primitive; the
// dispatcher itself does not know what a CommTask is.
type SignalFunc func(res handler.Result, execErr error)

var jobIDs atomic.Uint64

// Job wraps a Handler with the bookkeeping needed to run it once on a
// worker goroutine and report the outcome back at most once.
type Job struct {
	ID      uint64
	h       handler.Handler
	signal  SignalFunc

	// detached is fixed at construction and never reassigned: a detached
	// job's signal callback is owned by the async job registry instead of
	// a CommTask, and that ownership can't change mid-flight.
	detached bool

	ctxValues map[any]any

	cleanupInProgress atomic.Bool
	cancelled         atomic.Bool
}

// streamWriterKey is the context key a streaming-capable Handler uses to
// reach back into the CommTask that owns its connection, without the
// dispatcher package needing to know what a CommTask is.
type streamWriterKey struct{}

// StreamWriterKey is the context.Value key under which a chunked-streaming
// Handler finds its handler.StreamWriter, when the comm task attached one
// through WithContextValue.
var StreamWriterKey = streamWriterKey{}

// WithContextValue attaches a value the worker context will carry into
// Prepare/Execute/Finalize, keyed by key. Must be called before Submit.
func (j *Job) WithContextValue(key, val any) *Job {
	if j.ctxValues == nil {
		j.ctxValues = make(map[any]any, 1)
	}
	j.ctxValues[key] = val
	return j
}

// NewJob constructs a Job. detached must be decided by the caller up front;
// it cannot be changed afterwards.
func NewJob(h handler.Handler, detached bool, signal SignalFunc) *Job {
	return &Job{
		ID:       jobIDs.Add(1),
		h:        h,
		signal:   signal,
		detached: detached,
	}
}

// Detached reports whether this Job's CommTask side is expected to have
// gone away by the time the job completes (e.g. an async job whose HTTP
// connection already closed).
func (j *Job) Detached() bool { return j.detached }

// Cancel marks the job cancelled. If it has not started running, work()
// will skip Execute entirely and report handler.StatusCancelled.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
	j.h.Cancel()
}

// BeginCleanup marks the job as being torn down by its owner (e.g. the
// CommTask is closing); nothing clears the mark again. work() checks it
// with a short bounded spin and, if it is still set, drops the result
// instead of invoking the signal callback, so a signal is never delivered
// into a half-destroyed CommTask. This is the one primitive here that
// intentionally keeps a brief busy-wait; the window is bounded and short
// enough that a blocking wait would just add latency for no benefit.
func (j *Job) BeginCleanup() {
	j.cleanupInProgress.Store(true)
}

func (j *Job) work(ctx context.Context) {
	logger := obslog.NewEntry(obslog.CategoryDispatcher, 0, "job.run").WithJobID(j.ID)

	for k, v := range j.ctxValues {
		ctx = context.WithValue(ctx, k, v)
	}

	var res handler.Result
	var execErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = panicToError(r)
				res = handler.Result{Status: handler.StatusInternalError}
			}
		}()

		if j.cancelled.Load() {
			res = handler.Result{Status: handler.StatusCancelled}
			return
		}
		if err := j.h.Prepare(ctx); err != nil {
			res = handler.Result{Status: handler.StatusInternalError}
			execErr = err
			return
		}
		res, execErr = j.h.Execute(ctx)
	}()

	// Finalize always runs, even on panic or cancellation, per the
	// handler contract.
	func() {
		defer func() { recover() }()
		j.h.Finalize(ctx, res, execErr)
	}()

	for spins := 0; j.cleanupInProgress.Load() && spins < 1000; spins++ {
		yieldToScheduler()
	}

	if j.signal != nil && !j.cleanupInProgress.Load() {
		j.signal(res, execErr)
	}

	logger.WithField("status", res.Status).Emit()
}
