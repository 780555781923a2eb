package router

import (
	"context"
	"testing"

	"github.com/powellke/arangodb/internal/handler"
)

func stubFactory(name string) Factory {
	return func(ctx *Context) handler.Handler {
		return &handler.Func{
			Policy_: handler.QueuePolicy{Queue: "standard"},
			Fn: func(c context.Context) (handler.Result, error) {
				return handler.Result{Status: handler.StatusOK, Body: []byte(name)}, nil
			},
		}
	}
}

func TestRouterStaticAndParamMatch(t *testing.T) {
	r := New()
	r.GET("/api/v1/user", stubFactory("list"))
	r.GET("/api/v1/user/:id", stubFactory("get"))
	r.POST("/api/v1/order", stubFactory("create"))

	tests := []struct {
		name       string
		method     string
		path       string
		wantMatch  bool
		wantParams map[string]string
	}{
		{"static list", "GET", "/api/v1/user", true, nil},
		{"param get", "GET", "/api/v1/user/123", true, map[string]string{"id": "123"}},
		{"different method same path", "POST", "/api/v1/order", true, nil},
		{"unknown path", "GET", "/api/v1/unknown", false, nil},
		{"partial path", "GET", "/api/v1", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var params []Param
			res := r.Match(tt.method, []byte(tt.path), &params)
			if (res.Factory != nil) != tt.wantMatch {
				t.Fatalf("Match(%s %s).Factory != nil = %v, want %v", tt.method, tt.path, res.Factory != nil, tt.wantMatch)
			}
			if !tt.wantMatch {
				return
			}
			for k, want := range tt.wantParams {
				found := false
				for _, p := range params {
					if p.Key == k {
						found = true
						if got := string(p.Val.Bytes([]byte(tt.path))); got != want {
							t.Errorf("param %s = %q, want %q", k, got, want)
						}
					}
				}
				if !found {
					t.Errorf("param %s not matched", k)
				}
			}
		})
	}
}

func TestRouterDistinguishes404From405(t *testing.T) {
	r := New()
	r.POST("/only-post", stubFactory("x"))

	var params []Param
	res := r.Match("GET", []byte("/only-post"), &params)
	if res.Factory != nil {
		t.Fatal("GET matched a POST-only route")
	}
	if !res.PathExistsOther {
		t.Error("PathExistsOther = false, want true so caller can return 405 instead of 404")
	}

	res = r.Match("GET", []byte("/never-registered"), &params)
	if res.PathExistsOther {
		t.Error("PathExistsOther = true for a path that was never registered under any method")
	}
}

func TestNotFoundFactoryReturns404(t *testing.T) {
	h := NotFoundFactory(&Context{})
	res, err := h.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != handler.StatusNotFound {
		t.Errorf("Status = %v, want StatusNotFound", res.Status)
	}
}
