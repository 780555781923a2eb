package scheduler

import (
	"fmt"
	"sync/atomic"
)

// Scheduler owns a fixed fleet of Loops and assigns new Tasks to them
// round-robin.
type Scheduler struct {
	loops []*Loop
	next  atomic.Uint64
}

// New creates n loops and starts each on its own goroutine.
func New(n int) (*Scheduler, error) {
	if n <= 0 {
		return nil, fmt.Errorf("scheduler: n must be positive, got %d", n)
	}
	s := &Scheduler{loops: make([]*Loop, n)}
	for i := 0; i < n; i++ {
		l, err := NewLoop(i)
		if err != nil {
			s.Stop()
			return nil, fmt.Errorf("scheduler: create loop %d: %w", i, err)
		}
		s.loops[i] = l
	}
	for _, l := range s.loops {
		go l.Run()
	}
	return s, nil
}

// NumLoops returns the fleet size.
func (s *Scheduler) NumLoops() int { return len(s.loops) }

// AssignLoop picks the next loop round-robin and registers task on it,
// returning the chosen loop so the caller (typically a CommTask
// constructor) can retain it for later RunOnLoop/Rearm calls.
func (s *Scheduler) AssignLoop(task Task) *Loop {
	l := s.PickLoop()
	l.Register(task)
	return l
}

// PickLoop chooses the next loop round-robin without registering anything
// on it yet, for callers (like a CommTask constructor) that need to know
// which loop they will run on before the task value exists.
func (s *Scheduler) PickLoop() *Loop {
	i := int(s.next.Add(1)-1) % len(s.loops)
	return s.loops[i]
}

// WakeupLoop forces the i'th loop to re-check its command queue immediately.
func (s *Scheduler) WakeupLoop(i int) {
	if i < 0 || i >= len(s.loops) {
		return
	}
	s.loops[i].wake.signal()
}

// Stop asks every loop to shut down and waits for them all to exit.
func (s *Scheduler) Stop() {
	for _, l := range s.loops {
		if l != nil {
			l.Stop()
		}
	}
	for _, l := range s.loops {
		if l != nil {
			l.Wait()
			l.Close()
		}
	}
}
