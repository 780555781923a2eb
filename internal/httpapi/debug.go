// Package httpapi holds the built-in routes every instance exposes itself,
// independent of whatever external collaborator registers real query
// handlers on the same router.
package httpapi

import (
	"bytes"
	"context"
	"time"

	"github.com/powellke/arangodb/internal/dispatcher"
	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/router"
)

const maxDebugSleep = 5 * time.Second

// streamChunkSizes is the fixed chunk plan the chunked-streaming
// integration test exercises: four 10-byte chunks then a 5-byte one,
// enough to show in-order delivery without a real producer behind it.
var streamChunkSizes = []int{10, 10, 10, 10, 5}

// registerDebugStream wires GET /_admin/debug/stream, a fixed five-chunk
// producer standing in for a real streamed query result set.
func registerDebugStream(r *router.Router) {
	r.GET("/_admin/debug/stream", func(ctx *router.Context) handler.Handler {
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard", Streaming: true},
			Fn: func(c context.Context) (handler.Result, error) {
				sw, ok := c.Value(dispatcher.StreamWriterKey).(handler.StreamWriter)
				if !ok {
					return handler.Result{Status: handler.StatusInternalError}, nil
				}
				sw.StartStreaming(map[string]string{"Content-Type": "application/octet-stream"})
				for i, n := range streamChunkSizes {
					if err := sw.SendChunk(c, bytes.Repeat([]byte{byte('a' + i)}, n)); err != nil {
						sw.EndStream()
						return handler.Result{Status: handler.StatusCancelled}, err
					}
				}
				sw.EndStream()
				return handler.Result{Status: handler.StatusOK}, nil
			},
		}
	})
}

// registerDebug wires GET /_admin/debug?sleep=<ms>, the canonical
// happy-path exercise route: it optionally sleeps for the requested
// duration (clamped) before replying 200, so integration tests and manual
// probing can exercise the full accept -> parse -> dispatch -> respond path
// without a real query executor registered.
func registerDebug(r *router.Router) {
	r.GET("/_admin/debug", func(ctx *router.Context) handler.Handler {
		sleepMS := parseIntParam(ctx.Req.RawQuery.Bytes(ctx.Buf), "sleep")
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard"},
			Fn: func(c context.Context) (handler.Result, error) {
				d := time.Duration(sleepMS) * time.Millisecond
				if d > maxDebugSleep {
					d = maxDebugSleep
				}
				if d > 0 {
					select {
					case <-time.After(d):
					case <-c.Done():
						return handler.Result{Status: handler.StatusCancelled}, nil
					}
				}
				return handler.Result{Status: handler.StatusOK, Body: []byte("ok")}, nil
			},
		}
	})
}

// parseIntParam pulls an unsigned integer value for key out of a raw query
// string without allocating a url.Values map, matching the zero-copy spirit
// of the rest of internal/protocol.
func parseIntParam(rawQuery []byte, key string) int {
	kb := []byte(key)
	for i := 0; i < len(rawQuery); {
		eq := indexByte(rawQuery[i:], '=')
		if eq < 0 {
			return 0
		}
		name := rawQuery[i : i+eq]
		j := i + eq + 1
		amp := indexByte(rawQuery[j:], '&')
		var val []byte
		if amp < 0 {
			val = rawQuery[j:]
			i = len(rawQuery)
		} else {
			val = rawQuery[j : j+amp]
			i = j + amp + 1
		}
		if string(name) == string(kb) {
			return atoiSafe(val)
		}
	}
	return 0
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

func atoiSafe(b []byte) int {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
