package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	OllamaName       = "ollama"
	OllamaBaseURL    = "http://localhost:11434"
	ollamaDefaultMdl = "llama3.1"
)

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaProvider implements Provider against a local Ollama server. The
// server runs one model at a time, so it reports no parallel support and the
// engine drives it sequentially.
type OllamaProvider struct {
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
}

// NewOllamaProvider creates the local backend.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultMdl
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute // local inference is slow
	}
	return &OllamaProvider{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		client:  &http.Client{},
	}
}

// Name returns the provider identifier.
func (p *OllamaProvider) Name() string { return OllamaName }

// SupportsParallel reports false: one local model, one request at a time.
func (p *OllamaProvider) SupportsParallel() bool { return false }

// Transform rewrites text via the Ollama chat endpoint.
func (p *OllamaProvider) Transform(ctx context.Context, req TransformRequest) (string, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := ollamaChatRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Text},
		},
		Stream: false,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", NewError(ClassFatal, OllamaName, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", NewError(ClassFatal, OllamaName, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", classifyNetErr(OllamaName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyNetErr(OllamaName, err)
	}

	if resp.StatusCode != http.StatusOK {
		// Ollama reports a missing model as 404 with an explanatory body.
		return "", classifyStatus(OllamaName, resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", NewError(ClassTransient, OllamaName, fmt.Errorf("unmarshal response: %w", err))
	}
	if chatResp.Message.Content == "" && !chatResp.Done {
		return "", NewError(ClassTransient, OllamaName, errors.New("incomplete response"))
	}

	return chatResp.Message.Content, nil
}

// Ollama API types

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

var _ Provider = (*OllamaProvider)(nil)
