// Package router matches an HTTP method and path against a registered set
// of routes and produces the handler.Handler that should run for the
// match, dispatching per HTTP method against a single consistent Handler
// type.
package router

import (
	"context"

	"github.com/powellke/arangodb/internal/handler"
	"github.com/powellke/arangodb/internal/protocol"
)

// Context is the per-request view a route's Factory uses to build a
// handler.Handler: the parsed request, the raw connection buffer the
// request's Views point into, and any matched route parameters.
type Context struct {
	Req    *protocol.Request
	Buf    []byte
	Params []Param
}

func (c *Context) Path() []byte   { return c.Req.Path.Bytes(c.Buf) }
func (c *Context) Method() []byte { return c.Req.Method.Bytes(c.Buf) }
func (c *Context) Body() []byte   { return c.Req.Body.Bytes(c.Buf) }

func (c *Context) Param(key string) []byte {
	for _, p := range c.Params {
		if p.Key == key {
			return p.Val.Bytes(c.Buf)
		}
	}
	return nil
}

// Param is one matched route parameter.
type Param struct {
	Key string
	Val protocol.View
}

// Factory builds the Handler that should run for a matched request.
type Factory func(ctx *Context) handler.Handler

// NotFoundFactory backs the built-in 404 response for a path no route
// matches. There is no factory for 405: callers answer that themselves when
// Match reports PathExistsOther.
var NotFoundFactory Factory = func(ctx *Context) handler.Handler {
	return &handler.Func{
		Policy_: handler.QueuePolicy{Queue: "standard"},
		Fn: func(_ context.Context) (handler.Result, error) {
			return handler.Result{Status: handler.StatusNotFound}, nil
		},
	}
}
