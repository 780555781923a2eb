package workmonitor

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/goroutineid"
	"github.com/stretchr/testify/require"
)

func TestEnterLeaveLIFOSingleGoroutine(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	leaveOuter := s.Enter(KindCommTask, "outer")
	leaveInner := s.Enter(KindJob, "inner")

	s.mu.Lock()
	v, ok := s.stacks.Load(goroutineid.Get())
	s.mu.Unlock()
	require.True(t, ok)
	st := v.(*stack)
	require.Equal(t, "inner", st.top.Detail)
	require.Equal(t, "outer", st.top.prev.Detail)

	leaveInner()

	s.mu.Lock()
	v, ok = s.stacks.Load(goroutineid.Get())
	s.mu.Unlock()
	require.True(t, ok)
	st = v.(*stack)
	require.Equal(t, "outer", st.top.Detail)

	leaveOuter()

	s.mu.Lock()
	_, ok = s.stacks.Load(goroutineid.Get())
	s.mu.Unlock()
	require.False(t, ok, "stack should be removed once empty")
}

func TestEnterConcurrentGoroutinesIndependentStacks(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			leave := s.Enter(KindHandler, "work")
			defer leave()
			time.Sleep(time.Millisecond)
		}()
	}
	wg.Wait()

	var count int
	s.stacks.Range(func(_, _ any) bool { count++; return true })
	require.Equal(t, 0, count, "every goroutine must leave its own stack cleanly")
}

func TestLeaveIsIdempotent(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	leave := s.Enter(KindAsyncJob, "x")
	leave()
	require.NotPanics(t, func() { leave() })
}
