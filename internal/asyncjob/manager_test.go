package asyncjob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/powellke/arangodb/internal/handler"
)

func TestSubmitPollFetchRoundTrip(t *testing.T) {
	m := New(16, time.Hour)
	defer m.Stop()

	id := m.NewID()
	m.Put(id, nil)

	e, ok := m.Poll(id)
	require.True(t, ok)
	require.Equal(t, StatusPending, e.Status)

	m.Complete(id, handler.Result{Status: handler.StatusOK, Body: []byte("done")}, nil)

	e, ok = m.Poll(id)
	require.True(t, ok)
	require.Equal(t, StatusDone, e.Status)

	fetched, err := m.Fetch(id)
	require.NoError(t, err)
	require.Equal(t, handler.StatusOK, fetched.Result.Status)
	require.Equal(t, "done", string(fetched.Result.Body))
}

func TestSecondFetchIsUnknown(t *testing.T) {
	m := New(16, time.Hour)
	defer m.Stop()

	id := m.NewID()
	m.Put(id, nil)
	m.Complete(id, handler.Result{Status: handler.StatusOK}, nil)

	_, err := m.Fetch(id)
	require.NoError(t, err)

	_, err = m.Fetch(id)
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestFetchBeforeDoneIsUnknown(t *testing.T) {
	m := New(16, time.Hour)
	defer m.Stop()

	id := m.NewID()
	m.Put(id, nil)

	_, err := m.Fetch(id)
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestCancelInvokesCallback(t *testing.T) {
	m := New(16, time.Hour)
	defer m.Stop()

	cancelled := false
	id := m.NewID()
	m.Put(id, func() { cancelled = true })

	require.NoError(t, m.Cancel(id))
	require.True(t, cancelled)

	e, ok := m.Poll(id)
	require.True(t, ok)
	require.Equal(t, StatusCancelled, e.Status)
}

func TestCancelUnknownJob(t *testing.T) {
	m := New(16, time.Hour)
	defer m.Stop()
	require.ErrorIs(t, m.Cancel(999), ErrUnknownJob)
}

func TestEvictionDropsOldestPendingOverCapacity(t *testing.T) {
	m := New(2, time.Hour)
	defer m.Stop()

	id1 := m.NewID()
	m.Put(id1, nil)
	time.Sleep(time.Millisecond)
	id2 := m.NewID()
	m.Put(id2, nil)
	time.Sleep(time.Millisecond)
	id3 := m.NewID()
	m.Put(id3, nil)

	_, ok := m.Poll(id1)
	require.False(t, ok, "oldest pending entry should have been evicted")
	_, ok = m.Poll(id3)
	require.True(t, ok)
}

func TestEvictionNeverDropsDoneEntryAheadOfOlderPending(t *testing.T) {
	m := New(2, time.Hour)
	defer m.Stop()

	oldPending := m.NewID()
	m.Put(oldPending, nil)
	time.Sleep(time.Millisecond)

	done := m.NewID()
	m.Put(done, nil)
	m.Complete(done, handler.Result{Status: handler.StatusOK}, nil)
	time.Sleep(time.Millisecond)

	newPending := m.NewID()
	m.Put(newPending, nil)

	_, ok := m.Poll(done)
	require.True(t, ok, "a completed, unfetched entry must not be evicted ahead of an older pending one")
}

func TestStopDiscardsPendingEntries(t *testing.T) {
	m := New(16, time.Hour)

	cancelled := false
	pending := m.NewID()
	m.Put(pending, func() { cancelled = true })

	done := m.NewID()
	m.Put(done, nil)
	m.Complete(done, handler.Result{Status: handler.StatusOK}, nil)

	m.Stop()

	require.True(t, cancelled, "Stop should invoke the cancel callback of a still-pending entry")
	_, ok := m.Poll(pending)
	require.False(t, ok, "Stop should discard pending entries")
	_, ok = m.Poll(done)
	require.True(t, ok, "Stop should leave already-completed, unfetched entries in place")
}
