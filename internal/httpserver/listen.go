// Package httpserver wires the scheduler, dispatcher, router, and
// asyncjob manager together into the externally reachable HTTP surface,
// supporting multiple listen endpoints and loop-affine connection
// handling.
package httpserver

import (
	"crypto/tls"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/powellke/arangodb/internal/config"
	"github.com/powellke/arangodb/internal/obslog"
	"github.com/powellke/arangodb/internal/scheduler"
)

// listenTask owns one listening socket and accepts connections onto it,
// handing each accepted fd off to the Scheduler for round-robin
// assignment to a CommTask-hosting loop.
type listenTask struct {
	fd       int
	endpoint config.ListenEndpoint
	tlsConf  *tls.Config
	server   *Server
}

func newListenTask(ep config.ListenEndpoint, s *Server) (*listenTask, error) {
	fd, err := listenSocket(ep)
	if err != nil {
		return nil, err
	}
	lt := &listenTask{fd: fd, endpoint: ep, server: s}
	if ep.TLS {
		lt.tlsConf = &tls.Config{} // certificates supplied by an external collaborator
	}
	return lt, nil
}

func (lt *listenTask) FD() int { return lt.fd }

func (lt *listenTask) OnReadable() {
	for {
		nfd, _, err := unix.Accept4(lt.fd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			obslog.For(obslog.CategoryHTTPServer).Warn().Err(err).Msg("accept failed")
			return
		}
		lt.server.onAccepted(nfd, lt.tlsConf)
	}
}

func (lt *listenTask) OnWritable() {}
func (lt *listenTask) OnTimeout()  {}

// Close stops accepting new connections on this socket. Called by the
// owning Loop while stopping.
func (lt *listenTask) Close() { unix.Close(lt.fd) }

func listenSocket(ep config.ListenEndpoint) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	var addr [4]byte
	if err := parseIPv4(ep.Address, &addr); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: ep.Port, Addr: addr}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("httpserver: bind %s:%d: %w", ep.Address, ep.Port, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func parseIPv4(s string, out *[4]byte) error {
	var a, b, c, d int
	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return fmt.Errorf("httpserver: invalid IPv4 address %q", s)
	}
	out[0], out[1], out[2], out[3] = byte(a), byte(b), byte(c), byte(d)
	return nil
}

// registerOn registers this listen task on a chosen loop and keeps no
// further loop affinity of its own beyond accept.
func (lt *listenTask) registerOn(l *scheduler.Loop) {
	l.Register(lt)
}
