package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.0-flash"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiProvider implements Provider over the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiProvider creates the Gemini backend.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewError(ClassConfiguration, GeminiName, errors.New("API key not set"))
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError(ClassConfiguration, GeminiName, fmt.Errorf("create client: %w", err))
	}

	return &GeminiProvider{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return GeminiName }

// SupportsParallel reports that the hosted API tolerates concurrent requests.
func (p *GeminiProvider) SupportsParallel() bool { return true }

// Transform rewrites text via GenerateContent. The system prompt is carried
// in-band ahead of the chunk text.
func (p *GeminiProvider) Transform(ctx context.Context, req TransformRequest) (string, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := req.SystemPrompt + "\n\n---\n\n" + req.Text
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", p.classify(err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", NewError(ClassContentPolicy, GeminiName, errors.New("empty response (possibly safety-blocked)"))
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

// classify maps Gemini errors onto the taxonomy. The SDK surfaces API errors
// as strings, so classification is by status vocabulary.
func (p *GeminiProvider) classify(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "quota"):
		return NewError(ClassFatal, GeminiName, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return NewError(ClassTransient, GeminiName, err)
	case strings.Contains(msg, "UNAUTHENTICATED") || strings.Contains(msg, "PERMISSION_DENIED") ||
		strings.Contains(lower, "api key not valid"):
		return NewError(ClassFatal, GeminiName, err)
	case strings.Contains(msg, "NOT_FOUND"):
		return NewError(ClassFatal, GeminiName, err)
	case strings.Contains(msg, "INVALID_ARGUMENT"):
		return NewError(ClassConfiguration, GeminiName, err)
	case strings.Contains(msg, "SAFETY") || strings.Contains(lower, "blocked"):
		return NewError(ClassContentPolicy, GeminiName, err)
	}
	return classifyNetErr(GeminiName, err)
}

var _ Provider = (*GeminiProvider)(nil)
