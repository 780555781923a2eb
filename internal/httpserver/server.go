package httpserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/powellke/arangodb/internal/asyncjob"
	"github.com/powellke/arangodb/internal/comm"
	"github.com/powellke/arangodb/internal/config"
	"github.com/powellke/arangodb/internal/dispatcher"
	"github.com/powellke/arangodb/internal/httpapi"
	"github.com/powellke/arangodb/internal/obslog"
	"github.com/powellke/arangodb/internal/obsmetrics"
	"github.com/powellke/arangodb/internal/router"
	"github.com/powellke/arangodb/internal/scheduler"
	"github.com/powellke/arangodb/internal/workmonitor"
)

// Server owns the scheduler fleet, the dispatcher, the async job registry,
// the route table, and the live set of chunked-streaming comm tasks.
type Server struct {
	cfg    config.Config
	sched  *scheduler.Scheduler
	disp   *dispatcher.Dispatcher
	async  *asyncjob.Manager
	wm     *workmonitor.Service
	router *router.Router

	listeners []*listenTask
	nextTask  atomic.Uint64

	// chunked is the live set of tasks currently streaming a chunked
	// response, guarded by a single mutex or spinlock;
	// config.LockStrategy selects between the two at runtime.
	chunkedMu   sync.Mutex
	chunkedSpin atomic.Bool
	chunked     map[uint64]*comm.Task
}

// InstanceID is a process-lifetime correlation id included in operational
// logs, distinct from async job ids (which stay a monotonic counter
// instead).
var InstanceID = uuid.New().String()

// New constructs every subsystem and wires them together, but does not
// start listening yet; call ListenAndServe for that.
func New(cfg config.Config) (*Server, error) {
	sched, err := scheduler.New(cfg.NumLoops)
	if err != nil {
		return nil, fmt.Errorf("httpserver: scheduler: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		sched:  sched,
		disp:   dispatcher.New(cfg.DispatcherQueues),
		async:  asyncjob.New(cfg.AsyncJobCapacity, cfg.AsyncJobTTL),
		wm:     workmonitor.New(5 * time.Second),
		router:  router.New(),
		chunked: make(map[uint64]*comm.Task),
	}
	httpapi.Register(s.router, s.async, s.disp, s.wm)
	return s, nil
}

// Router exposes the route table so cmd/arangod and tests can register
// additional handlers before ListenAndServe.
func (s *Server) Router() *router.Router { return s.router }

func (s *Server) AsyncJobs() *asyncjob.Manager { return s.async }

func (s *Server) WorkMonitor() *workmonitor.Service { return s.wm }

func (s *Server) Dispatcher() *dispatcher.Dispatcher { return s.disp }

// ListenAndServe creates and registers a listenTask per configured
// endpoint, then returns; the scheduler's loops were already started by
// New's call to scheduler.New.
func (s *Server) ListenAndServe() error {
	for _, ep := range s.cfg.ListenEndpoints {
		lt, err := newListenTask(ep, s)
		if err != nil {
			return fmt.Errorf("httpserver: listen %s:%d: %w", ep.Address, ep.Port, err)
		}
		s.listeners = append(s.listeners, lt)
		s.sched.AssignLoop(lt)
		obslog.For(obslog.CategoryHTTPServer).Info().
			Str("address", ep.Address).Int("port", ep.Port).Bool("tls", ep.TLS).
			Msg("listening")
	}
	return nil
}

// onAccepted is called from a listenTask's OnReadable, i.e. on a loop
// goroutine. It either spins up a blocking TLS goroutine or registers a
// plaintext comm.Task on a round-robin-chosen loop.
func (s *Server) onAccepted(fd int, tlsConf *tls.Config) {
	if tlsConf != nil {
		go s.serveTLSConn(fd, tlsConf)
		return
	}

	id := s.nextTask.Add(1)
	l := s.sched.PickLoop()
	task := comm.New(id, fd, l, s.router, s.disp, s.cfg.KeepAliveTimeout, s.onTaskClosed, s.onStreamChanged)
	l.Register(task)
}

func (s *Server) onTaskClosed(t *comm.Task) {
	s.removeChunked(t.ID)
}

func (s *Server) onStreamChanged(t *comm.Task, active bool) {
	if active {
		s.addChunked(t.ID, t)
	} else {
		s.removeChunked(t.ID)
	}
}

func (s *Server) addChunked(id uint64, t *comm.Task) {
	if s.cfg.LockStrategy == config.LockStrategySpin {
		for !s.chunkedSpin.CompareAndSwap(false, true) {
		}
		s.chunked[id] = t
		s.chunkedSpin.Store(false)
	} else {
		s.chunkedMu.Lock()
		s.chunked[id] = t
		s.chunkedMu.Unlock()
	}
	obsmetrics.ChunkedSubscribers.Set(float64(len(s.chunked)))
	if s.cfg.MaxChunkedTasks > 0 && len(s.chunked) > s.cfg.MaxChunkedTasks {
		obslog.For(obslog.CategoryHTTPServer).Warn().
			Int("active", len(s.chunked)).Int("limit", s.cfg.MaxChunkedTasks).
			Msg("chunked streaming task count exceeds configured limit")
	}
}

func (s *Server) removeChunked(id uint64) {
	if s.cfg.LockStrategy == config.LockStrategySpin {
		for !s.chunkedSpin.CompareAndSwap(false, true) {
		}
		delete(s.chunked, id)
		s.chunkedSpin.Store(false)
	} else {
		s.chunkedMu.Lock()
		delete(s.chunked, id)
		s.chunkedMu.Unlock()
	}
	obsmetrics.ChunkedSubscribers.Set(float64(len(s.chunked)))
}

// Shutdown stops accepting new work, drains in-flight dispatcher jobs, and
// tears down every loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sched.Stop()
	s.async.Stop()
	s.wm.Stop()
	return s.disp.Shutdown(ctx)
}
