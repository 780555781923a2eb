package comm

import (
	"bytes"
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// readUntil accumulates reads from fd until want reports satisfaction or
// deadline passes, unlike readAll's fixed "one request's worth" cutoff,
// which stops at the first blank line and so can't see chunk bodies.
func readUntil(t *testing.T, fd int, deadline time.Time, want func([]byte) bool) []byte {
	t.Helper()
	unix.SetNonblock(fd, true)
	var out []byte
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if want(out) {
			return out
		}
		if err != nil && err != unix.EAGAIN {
			return out
		}
		time.Sleep(time.Millisecond)
	}
	return out
}

func TestSendChunkDeliversChunksInOrder(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	clientFD, serverFD := fds[0], fds[1]
	defer unix.Close(clientFD)

	l := newTestLoop(t)
	task := New(1, serverFD, l, newOKRouter(), newTestDispatcher(t), time.Minute, nil, nil)
	l.Register(task)

	l.RunOnLoop(func() { task.StartStreaming(map[string]string{"Content-Type": "text/plain"}) })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := task.SendChunk(ctx, []byte{byte('a' + i)}); err != nil {
			t.Fatalf("SendChunk(%d) error = %v", i, err)
		}
	}
	task.EndStream()

	resp := readUntil(t, clientFD, time.Now().Add(2*time.Second), func(b []byte) bool {
		return bytes.HasSuffix(b, []byte("0\r\n\r\n"))
	})
	for i := 0; i < 5; i++ {
		if !bytes.Contains(resp, []byte{byte('a' + i)}) {
			t.Fatalf("response %q missing chunk %d", resp, i)
		}
	}
	if !bytes.HasSuffix(resp, []byte("0\r\n\r\n")) {
		t.Fatalf("response %q should end with the terminating chunk", resp)
	}
}

func TestSendChunkBlocksUnderBackpressureThenDeliversOnceDrained(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	clientFD, serverFD := fds[0], fds[1]
	defer unix.Close(clientFD)

	l := newTestLoop(t)
	task := New(1, serverFD, l, newOKRouter(), newTestDispatcher(t), time.Minute, nil, nil)
	l.Register(task)
	l.RunOnLoop(func() { task.StartStreaming(nil) })
	time.Sleep(10 * time.Millisecond)

	// Large enough, with nothing reading clientFD yet, to fill both
	// chunkCh's 32-slot buffer and the socket's send buffer, forcing
	// SendChunk to actually block on backpressure instead of dropping.
	const chunkSize = 4096
	const chunkCount = 200
	payload := bytes.Repeat([]byte{'z'}, chunkSize)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		for i := 0; i < chunkCount; i++ {
			if err := task.SendChunk(ctx, payload); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		t.Fatalf("SendChunk finished without blocking (err=%v); test did not exercise backpressure", err)
	case <-time.After(200 * time.Millisecond):
		// still blocked on a full queue/socket, as expected
	}

	stop := make(chan struct{})
	go func() {
		buf := make([]byte, chunkSize)
		for {
			select {
			case <-stop:
				return
			default:
			}
			unix.SetNonblock(clientFD, true)
			unix.Read(clientFD, buf)
			time.Sleep(time.Millisecond)
		}
	}()
	defer close(stop)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SendChunk error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendChunk never resumed once the peer started draining")
	}

	task.EndStream()
}

func TestSendChunkReturnsErrorWhenContextCancelled(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	clientFD, serverFD := fds[0], fds[1]
	defer unix.Close(clientFD)

	l := newTestLoop(t)
	task := New(1, serverFD, l, newOKRouter(), newTestDispatcher(t), time.Minute, nil, nil)
	l.Register(task)
	l.RunOnLoop(func() { task.StartStreaming(nil) })
	time.Sleep(10 * time.Millisecond)

	// With nothing ever reading clientFD, repeated large sends eventually
	// fill both chunkCh and the socket send buffer, so SendChunk has to
	// report the cancellation instead of dropping the chunk or hanging
	// past ctx's deadline.
	const chunkSize = 4096
	payload := bytes.Repeat([]byte{'x'}, chunkSize)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		for {
			if err := task.SendChunk(ctx, payload); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("SendChunk returned a nil error after the loop above only returns on error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendChunk never reported backpressure via ctx before the deadline")
	}

	task.EndStream()
}
