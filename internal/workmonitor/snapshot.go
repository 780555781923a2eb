package workmonitor

import "time"

// Snapshot is a point-in-time dump of every goroutine's work stack, exposed
// as JSON by internal/httpapi's diagnostics endpoint. The workmonitor
// Prometheus gauge is not fed from it; Enter and Leave maintain that gauge.
type Snapshot struct {
	TakenAt time.Time        `json:"taken_at"`
	Threads []ThreadSnapshot `json:"threads"`
}

// ThreadSnapshot is one goroutine's stack, top-of-stack first.
type ThreadSnapshot struct {
	GoroutineID int64             `json:"goroutine_id"`
	Entries     []EntrySnapshot   `json:"entries"`
}

// EntrySnapshot is one Description flattened for reporting.
type EntrySnapshot struct {
	Kind      Kind          `json:"kind"`
	Detail    string        `json:"detail"`
	Age       time.Duration `json:"age_ns"`
}

func (s *Service) snapshotLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.takeSnapshot()
		}
	}
}

func (s *Service) takeSnapshot() {
	now := time.Now()
	snap := Snapshot{TakenAt: now}

	s.mu.Lock()
	s.stacks.Range(func(key, value any) bool {
		gid := key.(int64)
		st := value.(*stack)
		var entries []EntrySnapshot
		for d := st.top; d != nil; d = d.prev {
			entries = append(entries, EntrySnapshot{
				Kind:   d.Kind,
				Detail: d.Detail,
				Age:    now.Sub(d.StartedAt),
			})
		}
		snap.Threads = append(snap.Threads, ThreadSnapshot{GoroutineID: gid, Entries: entries})
		return true
	})
	s.mu.Unlock()

	s.snapMu.Lock()
	s.lastSnapshot = snap
	s.snapMu.Unlock()
}

// LatestSnapshot returns the most recently taken snapshot. It never blocks on the
// background sweep.
func (s *Service) LatestSnapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.lastSnapshot
}
