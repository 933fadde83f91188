package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Class partitions provider failures by how the engine must react.
type Class string

const (
	// ClassTransient covers network blips, timeouts, and rate limiting.
	// Retried with backoff, bounded.
	ClassTransient Class = "transient"
	// ClassConfiguration covers missing credentials or models detectable at
	// validation time. Never retried.
	ClassConfiguration Class = "configuration"
	// ClassContentPolicy covers provider-side refusals surfaced as transport
	// errors (e.g. safety blocks). Never retried; resolved to a fallback.
	ClassContentPolicy Class = "content_policy"
	// ClassFatal covers quota exhaustion, invalid keys, and unknown models
	// discovered mid-job. Stops dispatch immediately.
	ClassFatal Class = "fatal"
)

// Error wraps a provider failure with its class.
type Error struct {
	Class    Class
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a class and provider name.
func NewError(class Class, provider string, err error) *Error {
	return &Error{Class: class, Provider: provider, Err: err}
}

// ClassOf extracts the class from err. Unclassified errors (including
// context cancellation) report ClassFatal so they are never retried blindly.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	return ClassFatal
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return ClassOf(err) == ClassTransient }

// IsFatal reports whether err must stop job dispatch.
func IsFatal(err error) bool { return ClassOf(err) == ClassFatal }

// classifyNetErr classifies transport-level errors: connection refused/reset,
// socket errors, and timeouts are transient.
func classifyNetErr(provider string, err error) *Error {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return NewError(ClassTransient, provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(ClassTransient, provider, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ClassTransient, provider, err)
	}
	return NewError(ClassFatal, provider, err)
}

// classifyStatus maps an HTTP status code from a provider API to a class.
// body is consulted to split rate limiting from quota exhaustion on 429.
func classifyStatus(provider string, status int, body string) *Error {
	err := fmt.Errorf("status %d: %s", status, truncate(body, 300))
	switch {
	case status == 401 || status == 403:
		return NewError(ClassFatal, provider, err)
	case status == 404:
		// Unknown model or endpoint.
		return NewError(ClassFatal, provider, err)
	case status == 429:
		if strings.Contains(strings.ToLower(body), "quota") ||
			strings.Contains(body, "insufficient_quota") {
			return NewError(ClassFatal, provider, err)
		}
		return NewError(ClassTransient, provider, err)
	case status == 400 || status == 422:
		return NewError(ClassConfiguration, provider, err)
	case status >= 500:
		return NewError(ClassTransient, provider, err)
	default:
		return NewError(ClassFatal, provider, err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
