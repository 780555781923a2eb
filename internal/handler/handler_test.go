package handler

import (
	"context"
	"testing"
)

func TestStatusHTTPCode(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusOK, 200},
		{StatusTransientQueueFull, 503},
		{StatusTransientBusy, 503},
		{StatusClientBadRequest, 400},
		{StatusClientMethodNotAllowed, 405},
		{StatusNotFound, 404},
		{StatusConflict, 409},
		{StatusUniqueConstraintViolation, 409},
		{StatusForbidden, 403},
		{StatusCancelled, 410},
		{StatusInternalError, 500},
		{StatusFatalLoopPanic, 500},
	}
	for _, tt := range tests {
		if got := tt.status.HTTPCode(); got != tt.want {
			t.Errorf("Status(%d).HTTPCode() = %d, want %d", tt.status, got, tt.want)
		}
	}
}

func TestStatusRetryAfterSeconds(t *testing.T) {
	if got := StatusTransientQueueFull.RetryAfterSeconds(); got != 1 {
		t.Errorf("TransientQueueFull retry = %d, want 1", got)
	}
	if got := StatusOK.RetryAfterSeconds(); got != 0 {
		t.Errorf("OK retry = %d, want 0", got)
	}
}

func TestFuncCancelSkipsExecute(t *testing.T) {
	called := false
	f := &Func{Fn: func(ctx context.Context) (Result, error) {
		called = true
		return Result{Status: StatusOK}, nil
	}}

	f.Cancel()
	res, err := f.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusCancelled {
		t.Errorf("Execute() after Cancel() = %v, want StatusCancelled", res.Status)
	}
	if called {
		t.Error("Fn was called after Cancel(), want it skipped")
	}
}

func TestFuncExecuteRunsFn(t *testing.T) {
	f := &Func{Fn: func(ctx context.Context) (Result, error) {
		return Result{Status: StatusOK, Body: []byte("hi")}, nil
	}}
	res, err := f.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK || string(res.Body) != "hi" {
		t.Errorf("Execute() = %+v, want StatusOK/\"hi\"", res)
	}
}
