// Package guard inspects provider responses against their inputs and decides
// whether to accept the output, fall back to the original text, or bisect
// the input and retry. The upstream transformer may refuse, summarize, or
// chat instead of transforming; the guard guarantees no content loss by
// always keeping "use the original chunk text" as the safe outcome.
package guard

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects the transformation the provider was asked to perform. The
// length expectations differ: cleanup should roughly preserve length while
// simplification legitimately shrinks text.
type Mode string

const (
	ModeCleanup  Mode = "cleanup"
	ModeSimplify Mode = "simplify"
)

// Reason classifies a soft failure.
type Reason string

const (
	ReasonContentSkip Reason = "content_skip"
	ReasonCopyright   Reason = "copyright"
	ReasonTruncated   Reason = "truncated"
)

// Config tunes the guard's heuristics. The ratio thresholds are empirically
// tuned constants carried as configuration.
type Config struct {
	// CleanupRatio is the minimum response/input length ratio in cleanup
	// mode (default 0.7).
	CleanupRatio float64
	// SimplifyRatio is the minimum ratio in simplification mode (default 0.3).
	SimplifyRatio float64
	// MinBisectSize is the input size, in bytes, below which a refusal is
	// accepted as a soft failure instead of recursing (default 2000).
	MinBisectSize int
	// TrivialInputSize is the input size at or below which a skip sentinel
	// is treated as a legitimate skip rather than a content loss (default 100).
	TrivialInputSize int
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		CleanupRatio:     0.7,
		SimplifyRatio:    0.3,
		MinBisectSize:    2000,
		TrivialInputSize: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CleanupRatio <= 0 {
		c.CleanupRatio = d.CleanupRatio
	}
	if c.SimplifyRatio <= 0 {
		c.SimplifyRatio = d.SimplifyRatio
	}
	if c.MinBisectSize <= 0 {
		c.MinBisectSize = d.MinBisectSize
	}
	if c.TrivialInputSize <= 0 {
		c.TrivialInputSize = d.TrivialInputSize
	}
	return c
}

// maxBisectDepth bounds the bisection recursion independently of
// MinBisectSize so pathological inputs always terminate.
const maxBisectDepth = 8

// Verdict is the guard's decision for one response.
type Verdict struct {
	// Text is the content to keep: the accepted response, the concatenated
	// bisection results, or the original input on soft failure.
	Text string
	// Fallback is true when Text is the original input.
	Fallback bool
	// Reason is set when Fallback is true, or when a trivial skip was
	// accepted (ReasonContentSkip with Fallback false and empty Text).
	Reason Reason
	// Skipped is true when a skip sentinel on trivial input was accepted;
	// not counted against the fallback circuit breaker.
	Skipped bool
	// ResponseSample holds up to sampleLen characters of the raw response,
	// recorded for the audit artifact on fallback.
	ResponseSample string
	// Bisected is true when the result was assembled from bisected halves.
	Bisected bool
}

// Transform re-invokes the provider pipeline on a bisected half. It is the
// same call path the chunk originally took (retry policy included).
type Transform func(ctx context.Context, text string) (string, error)

// Guard evaluates transformation responses.
type Guard struct {
	cfg Config
}

// New creates a Guard. Zero-valued config fields take tuned defaults.
func New(cfg Config) *Guard {
	return &Guard{cfg: cfg.withDefaults()}
}

// Evaluate classifies response against original. When the response looks
// like a refusal on a large input, transform is called on each bisected half
// and the halves are evaluated independently.
func (g *Guard) Evaluate(ctx context.Context, original, response string, mode Mode, transform Transform) (Verdict, error) {
	return g.evaluate(ctx, original, response, mode, transform, 0)
}

func (g *Guard) evaluate(ctx context.Context, original, response string, mode Mode, transform Transform, depth int) (Verdict, error) {
	trimmed := strings.TrimSpace(response)

	// Skip sentinel: the provider is instructed to answer with a sentinel
	// token for unprocessable input.
	if isSkipSentinel(trimmed) {
		if len(original) <= g.cfg.TrivialInputSize {
			return Verdict{Text: "", Skipped: true, Reason: ReasonContentSkip}, nil
		}
		return g.softFail(original, response, ReasonContentSkip), nil
	}

	// Conversational leakage: the model chatted instead of transforming.
	if isConversational(trimmed) {
		return g.softFail(original, response, ReasonContentSkip), nil
	}

	// Length-ratio check.
	threshold := g.cfg.CleanupRatio
	if mode == ModeSimplify {
		threshold = g.cfg.SimplifyRatio
	}
	if float64(len(response)) >= float64(len(original))*threshold {
		return Verdict{Text: response}, nil
	}

	// Short response. A refusal on a large input is worth bisecting: shrink
	// the unit of work until the transformer cooperates.
	if containsRefusal(trimmed) && len(original) >= g.cfg.MinBisectSize && depth < maxBisectDepth && transform != nil {
		return g.bisect(ctx, original, mode, transform, depth)
	}

	if containsRefusal(trimmed) {
		return g.softFail(original, response, ReasonCopyright), nil
	}
	return g.softFail(original, response, ReasonTruncated), nil
}

// bisect splits the input at its best boundary, re-transforms each half, and
// concatenates the two verdicts. Each half is evaluated independently so one
// cooperative half is kept even when the other falls back.
func (g *Guard) bisect(ctx context.Context, original string, mode Mode, transform Transform, depth int) (Verdict, error) {
	left, right := halve(original)
	if left == "" || right == "" {
		// Cannot shrink further.
		return g.softFail(original, "", ReasonCopyright), nil
	}

	var out strings.Builder
	fallback := false
	var reason Reason
	var sample string

	for _, part := range []string{left, right} {
		resp, err := transform(ctx, part)
		if err != nil {
			return Verdict{}, fmt.Errorf("bisected transform: %w", err)
		}
		v, err := g.evaluate(ctx, part, resp, mode, transform, depth+1)
		if err != nil {
			return Verdict{}, err
		}
		out.WriteString(v.Text)
		if v.Fallback {
			fallback = true
			reason = v.Reason
			sample = v.ResponseSample
		}
	}

	return Verdict{
		Text:           out.String(),
		Bisected:       true,
		Fallback:       fallback,
		Reason:         reason,
		ResponseSample: sample,
	}, nil
}

func (g *Guard) softFail(original, response string, reason Reason) Verdict {
	return Verdict{
		Text:           original,
		Fallback:       true,
		Reason:         reason,
		ResponseSample: sample(response),
	}
}

// sampleLen bounds the response excerpt kept for audit records.
const sampleLen = 200

func sample(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= sampleLen {
		return s
	}
	return s[:sampleLen]
}
