// Package obslog is the ambient structured-logging layer shared by every
// subsystem. It wraps zerolog behind a small category-scoped API so
// scheduler/dispatcher/comm/asyncjob/workmonitor log in one consistent shape
// without each package importing zerolog directly.
package obslog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Category names a subsystem for log-field scoping, mirroring the component
// names used throughout the rest of this repo.
type Category string

const (
	CategoryScheduler  Category = "scheduler"
	CategoryDispatcher Category = "dispatcher"
	CategoryComm       Category = "comm"
	CategoryHTTPServer Category = "httpserver"
	CategoryAsyncJob   Category = "asyncjob"
	CategoryWorkMon    Category = "workmonitor"
	CategoryConfig     Category = "config"
)

var (
	mu     sync.RWMutex
	global zerolog.Logger = newDefault(os.Stderr)
)

func newDefault(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetOutput swaps the global sink, e.g. to a file or to os.Stdout with
// zerolog.ConsoleWriter during local development.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	global = newDefault(w)
}

// SetLevel adjusts the minimum emitted level process-wide.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	global = global.Level(level)
}

// For returns a category-scoped logger. Cheap enough to call per component
// construction; not meant to be called per request.
func For(cat Category) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global.With().Str("component", string(cat)).Logger()
}

// Entry is a single structured log record, built fluently and emitted once.
// Mirrors the functional-option log-builder shape used for per-event
// diagnostic logging (timer fired, job queued, task signalled, ...).
type Entry struct {
	logger  zerolog.Logger
	level   zerolog.Level
	message string
	fields  map[string]any
}

// NewEntry starts building a log record for the given category.
func NewEntry(cat Category, level zerolog.Level, message string) *Entry {
	return &Entry{
		logger:  For(cat),
		level:   level,
		message: message,
		fields:  make(map[string]any, 4),
	}
}

func (e *Entry) WithField(key string, value any) *Entry {
	e.fields[key] = value
	return e
}

func (e *Entry) WithTaskID(id uint64) *Entry { return e.WithField("task_id", id) }

func (e *Entry) WithJobID(id uint64) *Entry { return e.WithField("job_id", id) }

func (e *Entry) WithLoopID(id int) *Entry { return e.WithField("loop_id", id) }

func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.fields["error"] = err.Error()
	}
	return e
}

func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.WithField("duration_ms", d.Milliseconds())
}

// Emit writes the record out.
func (e *Entry) Emit() {
	ev := e.logger.WithLevel(e.level)
	for k, v := range e.fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(e.message)
}
