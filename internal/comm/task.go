// Package comm implements CommTask: the per-connection HTTP/1.1 protocol
// state machine that owns a socket, feeds bytes through
// internal/protocol's zero-copy parser, resolves a route, and hands the
// resulting handler.Handler off to a dispatcher queue, as an explicit
// read/dispatch/write/keep-alive state machine rather than a single
// read-then-respond pass.
package comm

import (
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/powellke/arangodb/internal/dispatcher"
	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/obslog"
	"github.com/powellke/arangodb/internal/protocol"
	"github.com/powellke/arangodb/internal/router"
	"github.com/powellke/arangodb/internal/scheduler"
)

// errStreamClosed is returned by SendChunk once a task's stream has ended
// or the connection itself is gone.
var errStreamClosed = errors.New("comm: stream closed")

// State is CommTask's protocol state.
type State int32

const (
	StateReadHeaders State = iota
	StateReadBody
	StateDispatched
	StateWriting
	StateKeepAlive
	StateClosing
)

const bufSize = 1 << 16

// Submitter is the subset of *dispatcher.Dispatcher a Task needs; kept as
// an interface so tests can fake it without spinning up real queues.
type Submitter interface {
	Submit(queue string, job *dispatcher.Job) error
}

// Task is one connection's state machine. Its I/O-touching fields are
// loop-affine: only the goroutine running t.loop's Run may read them,
// except through the three cross-goroutine entry points documented below
// (Signal, SendChunk, NotifyClosed).
type Task struct {
	ID  uint64
	fd  int
	loop *scheduler.Loop

	router *router.Router
	submit Submitter

	buf    []byte
	offset int
	req    protocol.Request
	params []router.Param

	state         State
	streaming     bool
	usedStreaming bool
	keepAlive     bool
	keepAliveTO time.Duration

	currentJob  *dispatcher.Job
	pendingRes  handler.Result
	pendingErr  error
	pendingSig  atomic.Bool

	chunkCh      chan []byte
	streamDone   chan struct{}
	endRequested bool

	// writeBuf holds whatever a previous unix.Write couldn't accept; set by
	// queueWrite, drained by OnWritable. writeDone runs once it empties.
	writeBuf  []byte
	writeDone func()

	closeOnce atomic.Bool
	closed    chan struct{}
	onClosed  func(*Task)
	onStream  func(t *Task, active bool)

	idleTimer *scheduler.TimerHandle
}

// New constructs a Task for an already-accepted, non-blocking fd. onStream,
// if non-nil, is called with active=true when the task starts a chunked
// response and active=false when it ends one, so the owner can maintain a
// live set of streaming tasks (e.g. for a "currently streaming" gauge or an
// operator-triggered broadcast).
func New(id uint64, fd int, l *scheduler.Loop, rt *router.Router, sub Submitter, keepAliveTO time.Duration, onClosed func(*Task), onStream func(t *Task, active bool)) *Task {
	return &Task{
		ID:          id,
		fd:          fd,
		loop:        l,
		router:      rt,
		submit:      sub,
		buf:         make([]byte, bufSize),
		params:      make([]router.Param, 0, 8),
		keepAliveTO: keepAliveTO,
		onClosed:    onClosed,
		onStream:    onStream,
		closed:      make(chan struct{}),
	}
}

func (t *Task) FD() int { return t.fd }

// OnReadable is invoked by the owning Loop when the socket has bytes
// available. This is the only place ReadHeaders/ReadBody transitions
// happen.
func (t *Task) OnReadable() {
	if t.state == StateClosing {
		return
	}

	t.cancelIdleTimer()

	n, err := unix.Read(t.fd, t.buf[t.offset:])
	if err != nil && err != unix.EAGAIN {
		t.closeNow("read error")
		return
	}
	if n == 0 {
		t.closeNow("peer closed")
		return
	}
	t.offset += n

	t.state = StateReadBody
	consumed, perr := protocol.Parser{}.Parse(t.buf[:t.offset], &t.req)
	switch {
	case perr == nil:
		t.params = t.params[:0]
		t.dispatch()
		remaining := t.offset - consumed
		if remaining > 0 {
			copy(t.buf, t.buf[consumed:t.offset])
		}
		t.offset = remaining
	case perr == protocol.ErrIncomplete:
		t.state = StateReadHeaders
		t.loop.Rearm(t.fd, unix.EPOLLIN)
	default:
		t.writeError(handler.StatusClientBadRequest)
	}
}

// OnWritable flushes whatever is left of a partially written response, or
// serves the next queued chunk while streaming.
func (t *Task) OnWritable() {
	if len(t.writeBuf) > 0 {
		t.drainWriteBuf()
		return
	}
	if t.streaming {
		t.flushNextChunk()
		return
	}
	t.loop.Rearm(t.fd, unix.EPOLLIN)
}

// write makes one non-blocking write attempt, treating EAGAIN as zero bytes
// written rather than an error.
func (t *Task) write(buf []byte) (int, error) {
	n, err := unix.Write(t.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

// queueWrite writes buf to the socket. Whatever unix.Write doesn't accept
// is copied into t.writeBuf and resumed from OnWritable on the next
// EPOLLOUT; done runs once buf has fully reached the wire, possibly much
// later than this call returns. A write error closes the connection and
// done is never called.
func (t *Task) queueWrite(buf []byte, done func()) {
	n, err := t.write(buf)
	if err != nil {
		t.closeNow("write error")
		return
	}
	if n == len(buf) {
		if done != nil {
			done()
		}
		return
	}
	t.writeBuf = append([]byte(nil), buf[n:]...)
	t.writeDone = done
	t.loop.Rearm(t.fd, unix.EPOLLOUT)
}

// drainWriteBuf resumes a write queued by queueWrite. Runs on the loop
// goroutine only, from OnWritable.
func (t *Task) drainWriteBuf() {
	n, err := t.write(t.writeBuf)
	if err != nil {
		t.closeNow("write error")
		return
	}
	t.writeBuf = t.writeBuf[n:]
	if len(t.writeBuf) > 0 {
		t.loop.Rearm(t.fd, unix.EPOLLOUT)
		return
	}
	done := t.writeDone
	t.writeDone = nil
	if done != nil {
		done()
	}
}

func (t *Task) OnTimeout() {
	t.closeNow("keep-alive timeout")
}

// Close forcibly tears the connection down. Called by the owning Loop
// while stopping, for a task that has no other reason to close itself
// (e.g. a still-open keep-alive connection).
func (t *Task) Close() {
	t.closeNow("server shutdown")
}

// dispatch resolves a route for the just-parsed request and submits a Job
// to the appropriate dispatcher queue.
func (t *Task) dispatch() {
	t.keepAlive = t.req.KeepAlive
	ctx := &router.Context{Req: &t.req, Buf: t.buf, Params: t.params}

	match := t.router.Match(string(t.req.Method.Bytes(t.buf)), t.req.Path.Bytes(t.buf), &t.params)
	ctx.Params = t.params

	var f router.Factory
	switch {
	case match.Factory != nil:
		f = match.Factory
	case match.PathExistsOther:
		t.writeError(handler.StatusClientMethodNotAllowed)
		return
	default:
		f = router.NotFoundFactory
	}

	h := f(ctx)
	policy := h.Policy()

	t.state = StateDispatched
	job := dispatcher.NewJob(h, policy.Detached, t.Signal)
	if policy.Streaming {
		t.usedStreaming = true
		job.WithContextValue(dispatcher.StreamWriterKey, handler.StreamWriter(t))
	}

	t.currentJob = job
	if err := t.submit.Submit(policy.Queue, job); err != nil {
		t.currentJob = nil
		t.writeError(handler.StatusTransientQueueFull)
		return
	}
}

// Signal is the cross-goroutine entry point a dispatcher worker calls once
// a Job finishes. It must be idempotent and safe even if the Task is mid
// close; BeginCleanup/Close coordinate that via the job's own
// cleanup-in-progress flag (see dispatcher.Job).
func (t *Task) Signal(res handler.Result, execErr error) {
	if !t.pendingSig.CompareAndSwap(false, true) {
		return // already signalled once, drop duplicate wakeups
	}
	t.pendingRes = res
	t.pendingErr = execErr
	t.loop.RunOnLoop(func() { t.handleResponse() })
}

func (t *Task) handleResponse() {
	if t.state == StateClosing {
		return
	}
	t.pendingSig.Store(false)
	t.currentJob = nil

	if t.usedStreaming {
		// EndStream already wrote the terminating chunk and decided
		// keep-alive vs close; the Result returned from Execute is only
		// there to satisfy the Handler contract.
		t.usedStreaming = false
		return
	}

	res := t.pendingRes
	t.writeResult(res)
}

func (t *Task) writeError(status handler.Status) {
	t.writeResult(handler.Result{Status: status})
}

func (t *Task) writeResult(res handler.Result) {
	t.state = StateWriting

	// The connection only actually stays open if both the client asked for
	// it and the server is configured to honor keep-alive at all; a
	// misleading "Connection: keep-alive" header on a connection the
	// server is about to close would break well-behaved clients.
	willKeepAlive := t.keepAlive && t.keepAliveTO > 0

	headers := make([]protocol.OutHeader, 0, len(res.Headers)+2)
	for k, v := range res.Headers {
		headers = append(headers, protocol.OutHeader{Key: []byte(k), Val: []byte(v)})
	}
	if retry := res.Status.RetryAfterSeconds(); retry > 0 && retry < 10 {
		headers = append(headers, protocol.OutHeader{Key: []byte("Retry-After"), Val: []byte{byte('0' + retry)}})
	}
	headers = append(headers, protocol.OutHeader{Key: []byte("Connection"), Val: connectionHeaderValue(willKeepAlive)})

	out := make([]byte, protocol.ResponseSize(headers, res.Body))
	n := protocol.BuildResponse(out, res.Status.HTTPCode(), headers, res.Body)
	t.queueWrite(out[:n], func() {
		if willKeepAlive {
			t.state = StateKeepAlive
			t.loop.Rearm(t.fd, unix.EPOLLIN)
			t.armIdleTimer()
		} else {
			t.closeNow("no keep-alive")
		}
	})
}

// armIdleTimer schedules the keep-alive deadline. Only called once
// writeResult or tryFinishStream has already confirmed keepAliveTO > 0.
func (t *Task) armIdleTimer() {
	if t.keepAliveTO <= 0 {
		t.closeNow("keep-alive timeout is zero")
		return
	}
	t.idleTimer = t.loop.ScheduleTimeout(t.keepAliveTO, func() { t.OnTimeout() })
}

func (t *Task) cancelIdleTimer() {
	if t.idleTimer != nil {
		t.loop.CancelTimeout(t.idleTimer)
		t.idleTimer = nil
	}
}

func connectionHeaderValue(keepAlive bool) []byte {
	if keepAlive {
		return []byte("keep-alive")
	}
	return []byte("close")
}

// closeNow tears the connection down. Must run on the loop goroutine.
func (t *Task) closeNow(reason string) {
	if !t.closeOnce.CompareAndSwap(false, true) {
		return
	}
	t.state = StateClosing
	t.cancelIdleTimer()
	if t.currentJob != nil {
		t.currentJob.BeginCleanup()
	}
	close(t.closed)
	t.loop.Deregister(t)
	unix.Close(t.fd)

	obslog.For(obslog.CategoryComm).Debug().Uint64("task_id", t.ID).Str("reason", reason).Msg("comm task closed")

	if t.onClosed != nil {
		t.onClosed(t)
	}
}

// NotifyClosed lets the owner force a close from outside the loop
// goroutine (e.g. shutdown), by routing through RunOnLoop.
func (t *Task) NotifyClosed(reason string) {
	t.loop.RunOnLoop(func() { t.closeNow(reason) })
}
