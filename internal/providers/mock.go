package providers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockProvider is a Provider for testing with scriptable behavior.
type MockProvider struct {
	// ProviderName overrides the reported name.
	ProviderName string
	// Latency is simulated per call.
	Latency time.Duration
	// Parallel controls SupportsParallel (default true).
	Sequential bool

	// TransformFunc, when set, computes the response per call.
	TransformFunc func(ctx context.Context, req TransformRequest) (string, error)
	// Response is returned when TransformFunc is nil. Empty echoes the input.
	Response string
	// Err, when set, is returned from every call.
	Err error
	// FailFirst makes the first N calls return FailWith (then succeed).
	FailFirst int
	// FailWith is the error used by FailFirst (defaults to a transient error).
	FailWith error

	mu       sync.Mutex
	requests []TransformRequest
	count    atomic.Int64
}

// NewMockProvider creates a mock that echoes its input.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return MockName
}

// SupportsParallel reports the configured parallelism.
func (m *MockProvider) SupportsParallel() bool { return !m.Sequential }

// Transform returns the scripted response.
func (m *MockProvider) Transform(ctx context.Context, req TransformRequest) (string, error) {
	count := m.count.Add(1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if m.Err != nil {
		return "", m.Err
	}
	if m.FailFirst > 0 && count <= int64(m.FailFirst) {
		if m.FailWith != nil {
			return "", m.FailWith
		}
		return "", NewError(ClassTransient, m.Name(), context.DeadlineExceeded)
	}
	if m.TransformFunc != nil {
		return m.TransformFunc(ctx, req)
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return req.Text, nil
}

// RequestCount returns the number of Transform calls made.
func (m *MockProvider) RequestCount() int64 { return m.count.Load() }

// Requests returns a copy of all requests seen.
func (m *MockProvider) Requests() []TransformRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransformRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

var _ Provider = (*MockProvider)(nil)
