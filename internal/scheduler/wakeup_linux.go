//go:build linux

package scheduler

import "golang.org/x/sys/unix"

// wakeup is an eventfd registered on the loop's epoll instance, letting any
// goroutine interrupt EpollWait without a self-pipe. Grounded on
// go-eventloop's wakeup_linux.go design.
type wakeup struct {
	fd int
}

func newWakeup() (*wakeup, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &wakeup{fd: fd}, nil
}

func (w *wakeup) FD() int { return w.fd }

// signal wakes the loop. Safe to call from any goroutine, any number of
// times; EpollWait only needs to observe one readable edge.
func (w *wakeup) signal() {
	buf := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	unix.Write(w.fd, buf[:])
}

// drain clears the eventfd's counter after the loop wakes, so it does not
// immediately report readable again.
func (w *wakeup) drain() {
	var buf [8]byte
	unix.Read(w.fd, buf[:])
}

func (w *wakeup) Close() error {
	return unix.Close(w.fd)
}
