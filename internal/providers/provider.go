// Package providers defines the text-transformation provider contract and
// its concrete backends. Callers depend only on the Provider interface;
// after dispatch nothing branches on provider identity.
package providers

import (
	"context"
	"time"
)

// TransformRequest asks a provider to rewrite one chunk of text.
type TransformRequest struct {
	// Text is the chunk to transform.
	Text string
	// SystemPrompt carries the rewrite instructions (cleanup or simplify).
	SystemPrompt string
	// Timeout bounds the single attempt. Zero uses the provider default.
	Timeout time.Duration
}

// Provider is an interchangeable text-transformation backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string

	// Transform rewrites text per the system prompt. Errors carry a Class
	// (see errors.go); callers retry only ClassTransient.
	Transform(ctx context.Context, req TransformRequest) (string, error)

	// SupportsParallel reports whether concurrent requests are allowed.
	// Local single-model servers return false and are driven sequentially.
	SupportsParallel() bool
}

// DefaultTimeout is the per-attempt timeout when a request does not set one.
const DefaultTimeout = 120 * time.Second
