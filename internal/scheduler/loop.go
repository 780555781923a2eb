//go:build linux

package scheduler

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/goroutineid"

	"github.com/powellke/arangodb/internal/obslog"
)

const maxEvents = 128

// state is a Loop's created -> open -> running -> stopping -> stopped
// progression, guarded by stMu rather than left to rely on memory-model
// luck.
type state int32

const (
	stateCreated state = iota
	stateOpen
	stateRunning
	stateStopping
	stateStopped
)

// Loop is a single-goroutine reactor: exactly one goroutine ever calls
// EpollWait or touches the tasks map for a given Loop. Every other
// goroutine must go through Register/Deregister/RunOnLoop, which hand work
// off via the command channel and a wakeup signal.
type Loop struct {
	ID int

	epfd  int
	wake  *wakeup
	tasks map[int]Task // fd -> task; loop-goroutine-only

	cmds chan command

	st             state
	stMu           sync.Mutex
	ownerGoroutine int64

	timers  timers
	stopped chan struct{}
}

// NewLoop creates a Loop in the "created" state; call Run to start it.
func NewLoop(id int) (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wk, err := newWakeup()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	l := &Loop{
		ID:      id,
		epfd:    epfd,
		wake:    wk,
		tasks:   make(map[int]Task),
		cmds:    make(chan command, 4096),
		st:      stateCreated,
		stopped: make(chan struct{}),
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wk.FD(), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wk.FD()),
	}); err != nil {
		wk.Close()
		unix.Close(epfd)
		return nil, err
	}

	l.setState(stateOpen)
	return l, nil
}

func (l *Loop) setState(s state) {
	l.stMu.Lock()
	l.st = s
	l.stMu.Unlock()
}

func (l *Loop) State() state {
	l.stMu.Lock()
	defer l.stMu.Unlock()
	return l.st
}

func (l *Loop) assertOwner() {
	if l.ownerGoroutine != 0 && l.ownerGoroutine != goroutineid.Get() {
		panic("scheduler: loop-affinity violation: task I/O touched off the owning loop goroutine")
	}
}

// Register adds task to this loop's epoll set. Safe from any goroutine.
func (l *Loop) Register(t Task) {
	l.cmds <- command{kind: cmdRegister, task: t}
	l.wake.signal()
}

// Deregister removes task from this loop's epoll set. Safe from any goroutine.
func (l *Loop) Deregister(t Task) {
	l.cmds <- command{kind: cmdDeregister, task: t}
	l.wake.signal()
}

// RunOnLoop schedules fn to run on the loop goroutine, the idiomatic
// replacement for code that used to assume it already was the loop thread.
func (l *Loop) RunOnLoop(fn func()) {
	l.cmds <- command{kind: cmdRun, fn: fn}
	l.wake.signal()
}

// ScheduleTimeout arranges for fn to run on the loop goroutine after d, e.g.
// a comm task's keep-alive deadline. Must be called from the loop goroutine;
// callers elsewhere should go through RunOnLoop.
func (l *Loop) ScheduleTimeout(d time.Duration, fn func()) *TimerHandle {
	l.assertOwner()
	return l.timers.schedule(d, fn)
}

// CancelTimeout cancels a previously scheduled timeout. Must be called from
// the loop goroutine.
func (l *Loop) CancelTimeout(e *TimerHandle) {
	l.assertOwner()
	l.timers.cancel(e)
}

// Run is the loop's body; it blocks until Stop is called and all pending
// events have been processed. Call it from a freshly spawned goroutine.
func (l *Loop) Run() {
	l.ownerGoroutine = goroutineid.Get()
	l.setState(stateRunning)
	defer func() {
		l.setState(stateStopped)
		close(l.stopped)
	}()

	events := make([]unix.EpollEvent, maxEvents)
	logger := obslog.For(obslog.CategoryScheduler)

	for l.State() == stateRunning || l.State() == stateStopping {
		l.drainCommands()
		l.timers.fireExpired()

		if l.State() == stateStopping {
			l.closeAllTasks()
		}

		timeout := l.timers.nextTimeoutMS()
		if l.State() == stateStopping {
			timeout = 0
		}

		n, err := unix.EpollWait(l.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.Warn().Err(err).Msg("epoll_wait failed")
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wake.FD() {
				l.wake.drain()
				continue
			}
			task, ok := l.tasks[fd]
			if !ok {
				continue
			}
			ev := events[i].Events
			if ev&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				task.OnReadable()
			}
			if ev&unix.EPOLLOUT != 0 {
				task.OnWritable()
			}
		}

		if l.State() == stateStopping && len(l.tasks) == 0 {
			return
		}
	}
}

// closeAllTasks forces every still-registered task to release its fd, so
// that Stop doesn't wait forever on a listener or a keep-alive connection
// that has no reason to deregister itself voluntarily. Safe to call every
// iteration while stopping: each task is closed and removed from the map in
// the same pass, so a later call never closes it a second time.
func (l *Loop) closeAllTasks() {
	for fd, task := range l.tasks {
		task.Close()
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		delete(l.tasks, fd)
	}
}

func (l *Loop) drainCommands() {
	for {
		select {
		case c := <-l.cmds:
			l.applyCommand(c)
		default:
			return
		}
	}
}

func (l *Loop) applyCommand(c command) {
	switch c.kind {
	case cmdRegister:
		fd := c.task.FD()
		l.tasks[fd] = c.task
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLONESHOT,
			Fd:     int32(fd),
		})
	case cmdDeregister:
		fd := c.task.FD()
		delete(l.tasks, fd)
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	case cmdRun:
		c.fn()
	}
}

// Rearm re-registers fd for the given epoll events after a handler has
// finished draining it, restoring the EPOLLONESHOT edge. Must be called
// from the loop goroutine (via RunOnLoop if the caller is elsewhere).
func (l *Loop) Rearm(fd int, events uint32) {
	l.assertOwner()
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events | unix.EPOLLONESHOT,
		Fd:     int32(fd),
	})
}

// Stop requests the loop exit once pending tasks settle. Safe from any
// goroutine.
func (l *Loop) Stop() {
	l.setState(stateStopping)
	l.wake.signal()
}

// Wait blocks until the loop goroutine has returned from Run.
func (l *Loop) Wait() {
	<-l.stopped
}

func (l *Loop) Close() error {
	l.wake.Close()
	return unix.Close(l.epfd)
}
