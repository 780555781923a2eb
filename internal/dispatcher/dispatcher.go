package dispatcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/powellke/arangodb/internal/config"
	"github.com/powellke/arangodb/internal/obslog"
)

// Dispatcher owns one or more named Queues and the worker goroutines that
// drain them, supervised by an errgroup so Shutdown can wait for in-flight
// work to finish while surfacing the first worker error.
type Dispatcher struct {
	queues map[string]*Queue

	group      *errgroup.Group
	groupCtx   context.Context
	cancelFunc context.CancelFunc
}

// New builds a Dispatcher from the configured queues and starts their
// worker goroutines immediately.
func New(cfgs []config.QueueConfig) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	d := &Dispatcher{
		queues:     make(map[string]*Queue, len(cfgs)),
		group:      group,
		groupCtx:   groupCtx,
		cancelFunc: cancel,
	}

	for _, c := range cfgs {
		q := newQueue(c.Name, c.Capacity)
		d.queues[c.Name] = q
		for i := 0; i < c.Threads; i++ {
			group.Go(func() error {
				return q.run(groupCtx, context.Background())
			})
		}
	}
	return d
}

// Submit looks up the named queue and submits job to it.
func (d *Dispatcher) Submit(queueName string, job *Job) error {
	q, ok := d.queues[queueName]
	if !ok {
		return fmt.Errorf("dispatcher: unknown queue %q", queueName)
	}
	return q.Submit(job)
}

// QueueLen reports the current depth of the named queue, for diagnostics.
func (d *Dispatcher) QueueLen(queueName string) int {
	q, ok := d.queues[queueName]
	if !ok {
		return 0
	}
	return q.Len()
}

// Shutdown closes every queue so no new job is admitted, then waits for
// workers to drain whatever was already queued before joining them. ctx
// is a deadline fallback only: workers are never cancelled just because
// Shutdown was called, only if ctx expires before the drain finishes, so
// an accepted job is never dropped on the ordinary shutdown path.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	for _, q := range d.queues {
		q.close()
	}

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		obslog.NewEntry(obslog.CategoryDispatcher, 1, "shutdown deadline exceeded, cancelling workers still draining").Emit()
		d.cancelFunc()
		<-done
		return ctx.Err()
	}
}
