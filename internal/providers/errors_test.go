package providers

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

// TestClassOf verifies class extraction through wrapping.
func TestClassOf(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"transient", NewError(ClassTransient, "x", base), ClassTransient},
		{"configuration", NewError(ClassConfiguration, "x", base), ClassConfiguration},
		{"content policy", NewError(ClassContentPolicy, "x", base), ClassContentPolicy},
		{"fatal", NewError(ClassFatal, "x", base), ClassFatal},
		{"wrapped transient", fmt.Errorf("outer: %w", NewError(ClassTransient, "x", base)), ClassTransient},
		{"unclassified", base, ClassFatal},
		{"cancelled", context.Canceled, ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestClassifyStatus verifies HTTP status mapping.
func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   Class
	}{
		{401, "invalid key", ClassFatal},
		{403, "forbidden", ClassFatal},
		{404, "model not found", ClassFatal},
		{429, "rate limit exceeded", ClassTransient},
		{429, "insufficient_quota", ClassFatal},
		{429, "You exceeded your current quota", ClassFatal},
		{400, "bad request", ClassConfiguration},
		{422, "unprocessable", ClassConfiguration},
		{500, "server error", ClassTransient},
		{503, "unavailable", ClassTransient},
	}

	for _, tt := range tests {
		got := classifyStatus("test", tt.status, tt.body)
		if got.Class != tt.want {
			t.Errorf("classifyStatus(%d, %q) = %s, want %s", tt.status, tt.body, got.Class, tt.want)
		}
	}
}

// TestClassifyNetErr verifies socket errors are transient.
func TestClassifyNetErr(t *testing.T) {
	if got := classifyNetErr("test", syscall.ECONNREFUSED); got.Class != ClassTransient {
		t.Errorf("connection refused = %s, want transient", got.Class)
	}
	if got := classifyNetErr("test", syscall.ECONNRESET); got.Class != ClassTransient {
		t.Errorf("connection reset = %s, want transient", got.Class)
	}
	if got := classifyNetErr("test", context.DeadlineExceeded); got.Class != ClassTransient {
		t.Errorf("timeout = %s, want transient", got.Class)
	}
	if got := classifyNetErr("test", errors.New("arbitrary")); got.Class != ClassFatal {
		t.Errorf("arbitrary = %s, want fatal", got.Class)
	}
}

// TestError_Unwrap verifies errors.Is works through the provider error.
func TestError_Unwrap(t *testing.T) {
	base := errors.New("root cause")
	wrapped := NewError(ClassTransient, "test", base)
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is should find the root cause")
	}
}
