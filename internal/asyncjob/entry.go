// Package asyncjob implements the detached-job registry a handler can use
// to return an id immediately and let the caller poll/fetch the result
// later, instead of blocking a comm task.
//
// Grounded on original_source/arangod/HttpServer/HttpServerJob.cpp's
// detached-job bookkeeping; the eviction sweep's ordering uses
// golang.org/x/exp/slices, grounded in
// johnjansen-torua/cmd/coordinator/main.go's use of that package.
package asyncjob

import (
	"time"

	"github.com/powellke/arangodb/internal/handler"
)

// Status is an async job's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusDone
	StatusError
	StatusCancelled
)

// Entry is one registered async job.
type Entry struct {
	ID        uint64
	Status    Status
	Result    handler.Result
	Err       error
	CreatedAt time.Time
	Fetched   bool

	cancelFn func()
}
