package dispatcher

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/powellke/arangodb/internal/obsmetrics"
)

// ErrQueueFull is returned by Queue.Submit when the queue is at capacity.
// Handlers that return this status to a comm task map to handler.StatusTransientQueueFull.
var ErrQueueFull = errors.New("dispatcher: queue full")

// Queue is a single named, bounded FIFO of Jobs. A semaphore of the same
// capacity as the backing channel is Submit's admission check: a job is
// accepted only if it can take a slot, and a worker gives the slot back when
// it dequeues the job. Len() reports the channel's own length.
type Queue struct {
	Name     string
	capacity int

	ch  chan *Job
	sem *semaphore.Weighted
}

func newQueue(name string, capacity int) *Queue {
	return &Queue{
		Name:     name,
		capacity: capacity,
		ch:       make(chan *Job, capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Submit enqueues a job or returns ErrQueueFull immediately if the queue is
// saturated. Never blocks.
func (q *Queue) Submit(job *Job) error {
	if !q.sem.TryAcquire(1) {
		obsmetrics.QueueFullRejections.WithLabelValues(q.Name).Inc()
		return ErrQueueFull
	}
	select {
	case q.ch <- job:
		obsmetrics.QueueDepth.WithLabelValues(q.Name).Set(float64(q.Len()))
		return nil
	default:
		// sem said there was room but the channel disagrees: treat as full
		// rather than block, and give the slot back.
		q.sem.Release(1)
		obsmetrics.QueueFullRejections.WithLabelValues(q.Name).Inc()
		return ErrQueueFull
	}
}

// Len returns the approximate number of jobs currently queued (not counting
// ones a worker has already pulled off).
func (q *Queue) Len() int {
	return len(q.ch)
}

// run is the per-worker consume loop; Dispatcher starts Threads of these per
// queue under an errgroup.
func (q *Queue) run(ctx context.Context, workerCtx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-q.ch:
			if !ok {
				return nil
			}
			q.sem.Release(1)
			obsmetrics.QueueDepth.WithLabelValues(q.Name).Set(float64(q.Len()))
			obsmetrics.ActiveWorkers.WithLabelValues(q.Name).Inc()
			job.work(workerCtx)
			obsmetrics.ActiveWorkers.WithLabelValues(q.Name).Dec()
		}
	}
}

// close stops accepting new jobs; in-flight workers drain what's already in
// the channel because run() only exits once ch is closed AND empty.
func (q *Queue) close() {
	close(q.ch)
}
