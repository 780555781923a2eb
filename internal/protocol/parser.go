package protocol

import "bytes"

// Parser is stateless; one instance is shared across every comm task.
type Parser struct{}

// Parse scans raw for one complete HTTP/1.1 request starting at offset
// 0, filling req with Views into raw. It returns the number of bytes
// consumed. ErrIncomplete means "keep reading, try again once more bytes
// arrive"; any other error is fatal for the connection.
func (p Parser) Parse(raw []byte, req *Request) (int, error) {
	crs := 0
	req.HCount = 0

	findsep := func(start int, sep byte) int {
		idx := bytes.IndexByte(raw[start:], sep)
		if idx == -1 {
			return -1
		}
		return start + idx
	}

	sep := findsep(crs, ' ')
	if sep == -1 {
		return 0, ErrIncomplete
	}
	req.Method = View{St: u16(crs), End: u16(sep)}
	crs = sep + 1

	sep = findsep(crs, ' ')
	if sep == -1 {
		return 0, ErrIncomplete
	}
	pathEnd := sep
	qmark := bytes.IndexByte(raw[crs:sep], '?')
	if qmark == -1 {
		req.Path = View{St: u16(crs), End: u16(pathEnd)}
		req.RawQuery = View{}
	} else {
		req.Path = View{St: u16(crs), End: u16(crs + qmark)}
		req.RawQuery = View{St: u16(crs + qmark + 1), End: u16(pathEnd)}
	}
	crs = sep + 1

	sep = findsep(crs, '\n')
	if sep == -1 {
		return 0, ErrIncomplete
	}
	if sep > crs && raw[sep-1] == '\r' {
		req.Protocol = View{St: u16(crs), End: u16(sep - 1)}
		crs = sep + 1
	} else {
		return 0, ErrInvalid
	}

	var contentLen int
	req.KeepAlive = bytes.Equal(raw[req.Protocol.St:req.Protocol.End], []byte("HTTP/1.1"))

	for {
		if crs+1 >= len(raw) {
			return 0, ErrIncomplete
		}
		if raw[crs] == '\r' && raw[crs+1] == '\n' {
			crs += 2
			break
		}

		lf := findsep(crs, '\n')
		if lf == -1 {
			return 0, ErrIncomplete
		}
		if raw[lf-1] != '\r' {
			return 0, ErrInvalid
		}
		le := lf - 1

		coloni := findsep(crs, ':')
		if coloni == -1 || coloni > le {
			return 0, ErrInvalid
		}

		vs := coloni + 1
		for vs < le && raw[vs] == ' ' {
			vs++
		}

		key := raw[crs:coloni]
		val := raw[vs:le]

		if req.HCount < maxHeaders {
			req.Headers[req.HCount] = HeaderView{
				Key: View{St: u16(crs), End: u16(coloni)},
				Val: View{St: u16(vs), End: u16(le)},
			}
			req.HCount++
		}

		if equalFoldBytes(key, "content-length") {
			for _, c := range val {
				if c >= '0' && c <= '9' {
					contentLen = contentLen*10 + int(c-'0')
				}
			}
		}
		if equalFoldBytes(key, "connection") {
			req.KeepAlive = !equalFoldBytes(val, "close")
		}

		crs = lf + 1
	}

	if contentLen > 0 {
		if crs+contentLen > len(raw) {
			return 0, ErrIncomplete
		}
		req.Body = View{St: u16(crs), End: u16(crs + contentLen)}
		crs += contentLen
	} else {
		req.Body = View{}
	}

	if crs > 1<<16-1 {
		return 0, ErrTooLarge
	}
	return crs, nil
}

func u16(n int) uint16 {
	if n < 0 || n > 1<<16-1 {
		return 1<<16 - 1
	}
	return uint16(n)
}
