package httpserver

import (
	"crypto/tls"
	"net"
	"os"

	"github.com/powellke/arangodb/internal/dispatcher"
	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/obslog"
	"github.com/powellke/arangodb/internal/protocol"
	"github.com/powellke/arangodb/internal/router"
)

// serveTLSConn handles one TLS connection on a dedicated goroutine rather
// than through the epoll reactor: the raw-fd, zero-copy parser is built
// around plaintext sockets, and running a full TLS record layer through a
// oneshot-epoll loop would mean re-deriving crypto/tls's own buffering.
// Terminating TLS off the reactor, one goroutine per connection, is the
// standard escape hatch for that mismatch; the handshake runs here, fully
// off any Loop goroutine.
func (s *Server) serveTLSConn(fd int, conf *tls.Config) {
	f := os.NewFile(uintptr(fd), "tls-conn")
	raw, err := net.FileConn(f)
	if err != nil {
		f.Close()
		return
	}
	conn := tls.Server(raw, conf)
	defer conn.Close()

	if err := conn.Handshake(); err != nil {
		obslog.For(obslog.CategoryHTTPServer).Warn().Err(err).Msg("tls handshake failed")
		return
	}

	buf := make([]byte, 1<<16)
	offset := 0
	var req protocol.Request
	var params []router.Param

	for {
		n, err := conn.Read(buf[offset:])
		if err != nil || n == 0 {
			return
		}
		offset += n

		consumed, perr := protocol.Parser{}.Parse(buf[:offset], &req)
		if perr == protocol.ErrIncomplete {
			continue
		}
		if perr != nil {
			return
		}

		params = params[:0]
		match := s.router.Match(string(req.Method.Bytes(buf)), req.Path.Bytes(buf), &params)

		var f router.Factory
		switch {
		case match.Factory != nil:
			f = match.Factory
		case match.PathExistsOther:
			s.writeTLSError(conn, handler.StatusClientMethodNotAllowed)
			return
		default:
			f = router.NotFoundFactory
		}

		h := f(&router.Context{Req: &req, Buf: buf, Params: params})
		done := make(chan struct{})
		var res handler.Result
		job := dispatcher.NewJob(h, false, func(r handler.Result, execErr error) {
			res = r
			close(done)
		})
		if err := s.disp.Submit(h.Policy().Queue, job); err != nil {
			s.writeTLSError(conn, handler.StatusTransientQueueFull)
			return
		}
		<-done

		outHeaders := []protocol.OutHeader{{Key: []byte("Connection"), Val: []byte("close")}}
		out := make([]byte, protocol.ResponseSize(outHeaders, res.Body))
		n = protocol.BuildResponse(out, res.Status.HTTPCode(), outHeaders, res.Body)
		conn.Write(out[:n])
		return
	}
}

func (s *Server) writeTLSError(conn *tls.Conn, status handler.Status) {
	headers := []protocol.OutHeader{{Key: []byte("Connection"), Val: []byte("close")}}
	out := make([]byte, protocol.ResponseSize(headers, nil))
	n := protocol.BuildResponse(out, status.HTTPCode(), headers, nil)
	conn.Write(out[:n])
}
