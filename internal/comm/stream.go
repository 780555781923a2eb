package comm

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/powellke/arangodb/internal/protocol"
)

// StartStreaming switches the task into chunked-response mode: headers
// with Transfer-Encoding: chunked are written immediately and the caller
// (an async producer running on some other goroutine, typically a
// dispatcher worker) then feeds chunks through SendChunk until it calls
// EndStream.
func (t *Task) StartStreaming(headers map[string]string) {
	t.streaming = true
	t.endRequested = false
	t.chunkCh = make(chan []byte, 32)
	t.streamDone = make(chan struct{})

	outHeaders := make([]protocol.OutHeader, 0, len(headers)+2)
	for k, v := range headers {
		outHeaders = append(outHeaders, protocol.OutHeader{Key: []byte(k), Val: []byte(v)})
	}
	outHeaders = append(outHeaders,
		protocol.OutHeader{Key: []byte("Transfer-Encoding"), Val: []byte("chunked")},
		protocol.OutHeader{Key: []byte("Connection"), Val: connectionHeaderValue(t.keepAlive && t.keepAliveTO > 0)},
	)

	out := make([]byte, protocol.ResponseSize(outHeaders, nil))
	n := protocol.BuildResponse(out, 200, outHeaders, nil)
	t.queueWrite(out[:n], t.flushNextChunk)

	if t.onStream != nil {
		t.onStream(t, true)
	}
}

// SendChunk is the cross-goroutine entry point a chunked producer calls.
// It blocks only until there is room in the chunk queue, ctx is done, or
// the stream/connection is gone - never silently drops data, since a
// dropped chunk would corrupt the chunked framing the client sees.
func (t *Task) SendChunk(ctx context.Context, data []byte) error {
	if !t.streaming {
		return errStreamClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case t.chunkCh <- cp:
		t.loop.RunOnLoop(t.flushNextChunk)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return errStreamClosed
	case <-t.streamDone:
		return errStreamClosed
	}
}

// EndStream marks the stream as finished; the terminating zero-length
// chunk is written once every chunk already queued by SendChunk has
// actually reached the wire, never ahead of it.
func (t *Task) EndStream() {
	if !t.streaming {
		return
	}
	t.loop.RunOnLoop(func() {
		t.endRequested = true
		t.tryFinishStream()
	})
}

// flushNextChunk drains one queued chunk to the socket. Runs on the loop
// goroutine only, and only when no write is already in flight.
func (t *Task) flushNextChunk() {
	if !t.streaming || t.chunkCh == nil || len(t.writeBuf) > 0 {
		return
	}
	select {
	case data, ok := <-t.chunkCh:
		if !ok {
			return
		}
		buf := make([]byte, len(data)+16)
		n := protocol.BuildChunk(buf, data)
		t.queueWrite(buf[:n], func() {
			if t.endRequested {
				t.tryFinishStream()
				return
			}
			t.flushNextChunk()
		})
	default:
		if t.endRequested {
			t.tryFinishStream()
		}
	}
}

// tryFinishStream writes the terminating chunk once EndStream has been
// called and no chunk write is in flight and no buffered chunk remains. A
// no-op otherwise; safe to call repeatedly as each prior write drains.
func (t *Task) tryFinishStream() {
	if !t.endRequested || len(t.writeBuf) > 0 {
		return
	}

	select {
	case data, ok := <-t.chunkCh:
		if ok {
			buf := make([]byte, len(data)+16)
			n := protocol.BuildChunk(buf, data)
			t.queueWrite(buf[:n], t.tryFinishStream)
			return
		}
	default:
	}

	var term [8]byte
	n := protocol.BuildChunkTerminator(term[:])
	t.queueWrite(term[:n], func() {
		t.streaming = false
		t.endRequested = false
		close(t.streamDone)
		t.chunkCh = nil
		t.streamDone = nil

		if t.onStream != nil {
			t.onStream(t, false)
		}

		if t.keepAlive && t.keepAliveTO > 0 {
			t.state = StateKeepAlive
			t.loop.Rearm(t.fd, unix.EPOLLIN)
			t.armIdleTimer()
		} else {
			t.closeNow("stream complete, no keep-alive")
		}
	})
}
