// Package workmonitor tracks what every goroutine participating in request
// handling is currently doing, so an operator can ask "what is this process
// stuck on" without attaching a debugger.
//
// It is the Go analogue of WorkMonitor.cpp's thread-local stack of
// WorkDescription nodes: one stack per goroutine, keyed by goroutine id,
// with push/pop mirrored by Enter/the returned Leave closure.
package workmonitor

import (
	"sync"
	"time"

	"github.com/joeycumines/goroutineid"

	"github.com/powellke/arangodb/internal/obsmetrics"
)

// Kind categorizes a Description by the kind of work it represents:
// comm task, job, handler, or async job.
type Kind string

const (
	KindCommTask Kind = "comm_task"
	KindJob      Kind = "job"
	KindHandler  Kind = "handler"
	KindAsyncJob Kind = "async_job"
)

// Description is one entry on a goroutine's work stack.
type Description struct {
	Kind      Kind
	Detail    string
	StartedAt time.Time

	goroutineID int64
	prev        *Description
}

// stack is the per-goroutine linked stack of Descriptions, stored behind a
// sync.Map keyed by goroutine id rather than a real thread-local, which Go
// does not offer.
type stack struct {
	top *Description
}

// Service is the explicitly constructed, explicitly torn-down monitor
// instance; its lifetime is tied to process init/teardown rather than a
// package-level singleton, per the redesign this repo follows.
type Service struct {
	stacks sync.Map // goroutine id (int64) -> *stack, push/pop guarded by mu below
	mu     sync.Mutex

	freeable chan *Description
	done     chan struct{}
	wg       sync.WaitGroup

	snapshotInterval time.Duration
	snapMu           sync.RWMutex
	lastSnapshot     Snapshot
}

// New constructs a Service and starts its background reclamation and
// snapshot goroutines. Call Stop to tear it down.
func New(snapshotInterval time.Duration) *Service {
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Second
	}
	s := &Service{
		freeable:         make(chan *Description, 1024),
		done:             make(chan struct{}),
		snapshotInterval: snapshotInterval,
	}
	s.wg.Add(2)
	go s.reclaimLoop()
	go s.snapshotLoop()
	return s
}

// Stop drains background goroutines. Safe to call once.
func (s *Service) Stop() {
	close(s.done)
	s.wg.Wait()
}

// Enter pushes a new Description onto the calling goroutine's stack and
// returns a Leave func that pops it. Always call Leave via defer.
func (s *Service) Enter(kind Kind, detail string) func() {
	gid := goroutineid.Get()
	d := &Description{
		Kind:        kind,
		Detail:      detail,
		StartedAt:   time.Now(),
		goroutineID: gid,
	}

	s.mu.Lock()
	v, _ := s.stacks.Load(gid)
	st, ok := v.(*stack)
	if !ok {
		st = &stack{}
		s.stacks.Store(gid, st)
		obsmetrics.WorkMonitorActiveThreads.Inc()
	}
	d.prev = st.top
	st.top = d
	s.mu.Unlock()

	left := false
	return func() {
		if left {
			return
		}
		left = true
		s.leave(gid, d)
	}
}

func (s *Service) leave(gid int64, d *Description) {
	s.mu.Lock()
	v, _ := s.stacks.Load(gid)
	if st, ok := v.(*stack); ok && st.top == d {
		st.top = d.prev
		if st.top == nil {
			s.stacks.Delete(gid)
			obsmetrics.WorkMonitorActiveThreads.Dec()
		}
	}
	s.mu.Unlock()

	select {
	case s.freeable <- d:
	default:
		// reclamation queue saturated, drop: d is garbage-collected normally.
	}
}

// reclaimLoop drains the freeable channel off the hot path, keeping it
// from filling and making entries available for a future freelist pool.
func (s *Service) reclaimLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.freeable:
		}
	}
}
