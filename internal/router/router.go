package router

import "fmt"

// Router is a radix tree per HTTP method. Separate trees per method avoid
// a method-comparison on every node visited during matching.
type Router struct {
	trees map[string]*node
}

func New() *Router {
	return &Router{trees: make(map[string]*node, 8)}
}

func (r *Router) treeFor(method string) *node {
	t, ok := r.trees[method]
	if !ok {
		t = &node{}
		r.trees[method] = t
	}
	return t
}

func (r *Router) Handle(method, path string, f Factory) {
	r.treeFor(method).insert([]byte(path), f)
}

func (r *Router) GET(path string, f Factory)    { r.Handle("GET", path, f) }
func (r *Router) POST(path string, f Factory)   { r.Handle("POST", path, f) }
func (r *Router) PUT(path string, f Factory)    { r.Handle("PUT", path, f) }
func (r *Router) PATCH(path string, f Factory)  { r.Handle("PATCH", path, f) }
func (r *Router) DELETE(path string, f Factory) { r.Handle("DELETE", path, f) }

// MatchResult is what Match found: the Factory to build a Handler from,
// and whether the path existed at all under some other method (so the
// caller can tell 404 apart from 405).
type MatchResult struct {
	Factory          Factory
	PathExistsOther  bool
}

// Match looks up (method, path), appending any matched route params into
// params (which the caller owns and should reset between requests).
func (r *Router) Match(method string, path []byte, params *[]Param) MatchResult {
	t, ok := r.trees[method]
	if ok {
		if f := t.find(path, 0, params); f != nil {
			return MatchResult{Factory: f}
		}
	}

	for m, other := range r.trees {
		if m == method {
			continue
		}
		var scratch []Param
		if f := other.find(path, 0, &scratch); f != nil {
			return MatchResult{PathExistsOther: true}
		}
	}
	return MatchResult{}
}

func (r *Router) String() string {
	return fmt.Sprintf("router{methods=%d}", len(r.trees))
}
