package asyncjob

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/obslog"
	"github.com/powellke/arangodb/internal/obsmetrics"
)

var (
	ErrUnknownJob   = errors.New("asyncjob: unknown or already fetched job id")
	ErrAlreadyFetch = errors.New("asyncjob: job already fetched")
)

// Manager is the id -> *Entry registry. IDs are a monotonic counter seeded
// from wall-clock time at construction, giving process-lifetime uniqueness
// without needing to persist a counter across restarts.
type Manager struct {
	mu       sync.Mutex
	entries  map[uint64]*Entry
	nextID   atomic.Uint64
	capacity int
	ttl      time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Manager and starts its background TTL/capacity sweep.
func New(capacity int, ttl time.Duration) *Manager {
	m := &Manager{
		entries:  make(map[uint64]*Entry),
		capacity: capacity,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	m.nextID.Store(uint64(time.Now().UnixNano()))
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// Stop halts the background sweep and discards every pending entry,
// invoking each one's cancel callback. Done/errored entries a client
// hasn't fetched yet are left in place: Stop is a shutdown signal for work
// in flight, not a flush of results a client might still be about to
// collect from a drain-and-restart.
func (m *Manager) Stop() {
	close(m.done)
	m.wg.Wait()

	m.mu.Lock()
	var cancelFns []func()
	for id, e := range m.entries {
		if e.Status != StatusPending {
			continue
		}
		if e.cancelFn != nil {
			cancelFns = append(cancelFns, e.cancelFn)
		}
		delete(m.entries, id)
	}
	m.mu.Unlock()

	for _, fn := range cancelFns {
		fn()
	}
}

// NewID allocates the next async job id.
func (m *Manager) NewID() uint64 {
	return m.nextID.Add(1)
}

// Put registers a new pending entry for id. cancelFn is called by Cancel.
func (m *Manager) Put(id uint64, cancelFn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = &Entry{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		cancelFn:  cancelFn,
	}
	obsmetrics.AsyncJobsPending.Set(float64(m.pendingLocked()))
	m.evictIfOverCapacityLocked()
}

// Complete records the outcome of an async job. It is the Signal callback a
// detached dispatcher.Job is constructed with.
func (m *Manager) Complete(id uint64, res handler.Result, execErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.Status != StatusPending {
		return // evicted or cancelled already
	}
	e.Result = res
	e.Err = execErr
	if execErr != nil {
		e.Status = StatusError
	} else {
		e.Status = StatusDone
	}
	obsmetrics.AsyncJobsPending.Set(float64(m.pendingLocked()))
}

// Poll reports an entry's status without removing it.
func (m *Manager) Poll(id uint64) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Fetch returns an entry and removes it from the registry. A second Fetch
// for the same id reports ErrUnknownJob: fetch is a one-shot, idempotent
// consume.
func (m *Manager) Fetch(id uint64) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrUnknownJob
	}
	if e.Status == StatusPending {
		return Entry{}, ErrUnknownJob
	}
	delete(m.entries, id)
	return *e, nil
}

// Cancel marks a pending job cancelled and invokes its cancel callback.
func (m *Manager) Cancel(id uint64) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownJob
	}
	e.Status = StatusCancelled
	cancelFn := e.cancelFn
	m.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
	}
	return nil
}

func (m *Manager) pendingLocked() int {
	n := 0
	for _, e := range m.entries {
		if e.Status == StatusPending {
			n++
		}
	}
	return n
}

// evictIfOverCapacityLocked evicts the oldest pending-not-fetched entries
// once the registry exceeds capacity, so a client that never polls can't
// grow the registry without bound. Caller holds m.mu.
func (m *Manager) evictIfOverCapacityLocked() {
	if len(m.entries) <= m.capacity {
		return
	}
	candidates := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Status != StatusPending {
			continue
		}
		candidates = append(candidates, e)
	}
	slices.SortFunc(candidates, func(a, b *Entry) int {
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return 1
		}
		return 0
	})

	over := len(m.entries) - m.capacity
	evicted := 0
	for _, e := range candidates {
		if evicted >= over {
			break
		}
		delete(m.entries, e.ID)
		evicted++
		obsmetrics.AsyncJobsEvicted.Inc()
	}
	if evicted > 0 {
		obslog.NewEntry(obslog.CategoryAsyncJob, zerolog.WarnLevel, "evicted oldest pending async jobs over capacity").
			WithField("count", evicted).Emit()
	}
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	interval := m.ttl / 4
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if m.ttl > 0 && now.Sub(e.CreatedAt) > m.ttl {
			delete(m.entries, id)
		}
	}
}
