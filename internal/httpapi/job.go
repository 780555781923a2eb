package httpapi

import (
	"context"
	"strconv"

	"github.com/powellke/arangodb/internal/asyncjob"
	"github.com/powellke/arangodb/internal/dispatcher"
	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/router"
)

// registerJobs wires the detached-job HTTP surface: submit, poll, fetch,
// cancel. A real query executor would register its own async-capable
// handlers elsewhere on the router; these routes exercise the lifecycle
// end to end using an echo handler, since no query layer is in scope here.
func registerJobs(r *router.Router, async *asyncjob.Manager, disp *dispatcher.Dispatcher) {
	r.POST("/_api/job/:queue", func(ctx *router.Context) handler.Handler {
		queue := string(ctx.Param("queue"))
		body := append([]byte(nil), ctx.Body()...)
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard"},
			Fn: func(c context.Context) (handler.Result, error) {
				id := async.NewID()
				job := dispatcher.NewJob(&echoHandler{queue: queue, body: body}, true, func(res handler.Result, execErr error) {
					async.Complete(id, res, execErr)
				})
				async.Put(id, job.Cancel)
				if err := disp.Submit(queue, job); err != nil {
					async.Cancel(id)
					return handler.Result{Status: handler.StatusTransientQueueFull}, nil
				}
				return handler.Result{
					Status:  handler.StatusOK,
					Headers: map[string]string{"X-Async-Job-Id": strconv.FormatUint(id, 10)},
				}, nil
			},
		}
	})

	r.GET("/_api/job/:id", func(ctx *router.Context) handler.Handler {
		id := parseJobID(ctx.Param("id"))
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard"},
			Fn: func(c context.Context) (handler.Result, error) {
				e, ok := async.Poll(id)
				if !ok {
					return handler.Result{Status: handler.StatusNotFound}, nil
				}
				return handler.Result{
					Status:  handler.StatusOK,
					Headers: map[string]string{"X-Async-Job-Status": jobStatusString(e.Status)},
				}, nil
			},
		}
	})

	r.PUT("/_api/job/:id", func(ctx *router.Context) handler.Handler {
		id := parseJobID(ctx.Param("id"))
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard"},
			Fn: func(c context.Context) (handler.Result, error) {
				e, err := async.Fetch(id)
				if err != nil {
					return handler.Result{Status: handler.StatusNotFound}, nil
				}
				return e.Result, nil
			},
		}
	})

	r.DELETE("/_api/job/:id", func(ctx *router.Context) handler.Handler {
		id := parseJobID(ctx.Param("id"))
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard"},
			Fn: func(c context.Context) (handler.Result, error) {
				if err := async.Cancel(id); err != nil {
					return handler.Result{Status: handler.StatusNotFound}, nil
				}
				return handler.Result{Status: handler.StatusOK}, nil
			},
		}
	})
}

func parseJobID(b []byte) uint64 {
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

func jobStatusString(s asyncjob.Status) string {
	switch s {
	case asyncjob.StatusPending:
		return "pending"
	case asyncjob.StatusDone:
		return "done"
	case asyncjob.StatusError:
		return "error"
	case asyncjob.StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// echoHandler is the stand-in async-capable handler the detached-job
// surface exercises; a real deployment registers its own handler.Handler
// implementations (query execution, bulk import, ...) through the same
// dispatcher.Submit path.
type echoHandler struct {
	queue     string
	body      []byte
	cancelled bool
}

func (h *echoHandler) Policy() handler.QueuePolicy {
	return handler.QueuePolicy{Queue: h.queue, Detached: true}
}

func (h *echoHandler) Prepare(ctx context.Context) error { return nil }

func (h *echoHandler) Execute(ctx context.Context) (handler.Result, error) {
	if h.cancelled {
		return handler.Result{Status: handler.StatusCancelled}, nil
	}
	return handler.Result{Status: handler.StatusOK, Body: h.body}, nil
}

func (h *echoHandler) Finalize(ctx context.Context, res handler.Result, execErr error) {}

func (h *echoHandler) Cancel() { h.cancelled = true }
