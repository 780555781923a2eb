package protocol

// OutHeader is a response header pair, plain []byte because responses are
// assembled by handlers/comm tasks that don't have a source buffer to view
// into.
type OutHeader struct {
	Key, Val []byte
}

var statusTable = [506][]byte{
	100: []byte("100 Continue"),
	101: []byte("101 Switching Protocols"),

	200: []byte("200 OK"),
	201: []byte("201 Created"),
	202: []byte("202 Accepted"),
	204: []byte("204 No Content"),

	301: []byte("301 Moved Permanently"),
	302: []byte("302 Found"),
	304: []byte("304 Not Modified"),

	400: []byte("400 Bad Request"),
	401: []byte("401 Unauthorized"),
	403: []byte("403 Forbidden"),
	404: []byte("404 Not Found"),
	405: []byte("405 Method Not Allowed"),
	408: []byte("408 Request Timeout"),
	409: []byte("409 Conflict"),
	410: []byte("410 Gone"),
	413: []byte("413 Payload Too Large"),

	500: []byte("500 Internal Server Error"),
	501: []byte("501 Not Implemented"),
	502: []byte("502 Bad Gateway"),
	503: []byte("503 Service Unavailable"),
	504: []byte("504 Gateway Timeout"),
}

var (
	httpProto = []byte("HTTP/1.1 ")
	crlf      = []byte("\r\n")
	colonSp   = []byte(": ")
)

// IntToBuf writes the decimal digits of n into buf and returns how many
// bytes it wrote. Zero-alloc helper for building Content-Length et al.
func IntToBuf(buf []byte, n int) int {
	if n == 0 {
		buf[0] = '0'
		return 1
	}
	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n%10) + '0'
		n /= 10
	}
	return copy(buf, tmp[i:])
}

// BuildResponse writes a full HTTP/1.1 response into dst, returning the
// number of bytes written. dst must be large enough; callers size it from a
// pooled buffer sized to the headers plus body.
func BuildResponse(dst []byte, code int, headers []OutHeader, body []byte) int {
	if code < 100 || code > 505 {
		code = 500
	}
	st := statusTable[code]
	if st == nil {
		st = []byte("500 Internal Server Error")
	}

	n := copy(dst, httpProto)
	n += copy(dst[n:], st)
	n += copy(dst[n:], crlf)

	for _, h := range headers {
		n += copy(dst[n:], h.Key)
		n += copy(dst[n:], colonSp)
		n += copy(dst[n:], h.Val)
		n += copy(dst[n:], crlf)
	}

	n += copy(dst[n:], crlf)
	if len(body) > 0 {
		n += copy(dst[n:], body)
	}
	return n
}

// ResponseSize returns an upper bound on the bytes BuildResponse would
// write, so callers can size a pooled buffer up front without a dry run.
func ResponseSize(headers []OutHeader, body []byte) int {
	n := len(httpProto) + 32 + len(crlf) // status line, generous
	for _, h := range headers {
		n += len(h.Key) + len(colonSp) + len(h.Val) + len(crlf)
	}
	n += len(crlf) + len(body)
	return n
}
