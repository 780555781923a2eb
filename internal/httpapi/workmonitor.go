package httpapi

import (
	"context"
	"encoding/json"

	"github.com/powellke/arangodb/internal/asyncjob"
	"github.com/powellke/arangodb/internal/dispatcher"
	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/router"
	"github.com/powellke/arangodb/internal/workmonitor"
)

// registerWorkMonitor wires GET /_admin/work-monitor, mirroring arangod's
// real route of the same name: a JSON dump of every goroutine's current
// work-description stack. encoding/json is stdlib here because no
// serialization library appears anywhere in the retrieval pack; this is
// the one boundary in this package without a grounded third-party
// alternative (see DESIGN.md).
func registerWorkMonitor(r *router.Router, wm *workmonitor.Service) {
	r.GET("/_admin/work-monitor", func(ctx *router.Context) handler.Handler {
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "maintenance"},
			Fn: func(c context.Context) (handler.Result, error) {
				snap := wm.LatestSnapshot()
				body, err := json.Marshal(snap)
				if err != nil {
					return handler.Result{Status: handler.StatusInternalError}, err
				}
				return handler.Result{
					Status:  handler.StatusOK,
					Headers: map[string]string{"Content-Type": "application/json"},
					Body:    body,
				}, nil
			},
		}
	})
}

// Register wires every built-in route this process exposes onto r.
func Register(r *router.Router, async *asyncjob.Manager, disp *dispatcher.Dispatcher, wm *workmonitor.Service) {
	registerDebug(r)
	registerDebugStream(r)
	registerJobs(r, async, disp)
	registerWorkMonitor(r, wm)
}
