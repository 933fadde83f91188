package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy wraps provider calls with bounded retry for transient failures.
// Configuration, content-policy, and fatal errors propagate immediately:
// retrying a bad key or a missing model would waste the whole job, while
// retrying a network blip is cheap and usually succeeds.
type RetryPolicy struct {
	// MaxAttempts is the total attempt count including the first (default 3).
	MaxAttempts int
	// Delay is the base backoff; attempt n waits n × Delay (default 1s).
	Delay time.Duration
	// Logger is optional.
	Logger *slog.Logger
}

// DefaultRetryPolicy returns the standard bounded policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// Transform calls p.Transform with retries on transient failures only.
func (rp RetryPolicy) Transform(ctx context.Context, p Provider, req TransformRequest) (string, error) {
	attempts := rp.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := rp.Delay
	if delay <= 0 {
		delay = time.Second
	}

	return retry.DoWithData(
		func() (string, error) {
			return p.Transform(ctx, req)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.RetryIf(IsTransient),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			// Linear backoff: attempt × base delay.
			return time.Duration(n+1) * delay
		}),
		retry.OnRetry(func(n uint, err error) {
			if rp.Logger != nil {
				rp.Logger.Warn("retrying transient provider failure",
					"provider", p.Name(), "attempt", n+1, "error", err)
			}
		}),
		retry.LastErrorOnly(true),
	)
}
