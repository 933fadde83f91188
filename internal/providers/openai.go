package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig configures the OpenAI backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // optional, for compatible gateways
	Timeout     time.Duration
	Temperature float64
}

// OpenAIProvider implements Provider over the OpenAI chat completions API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	temperature float64
}

// NewOpenAIProvider creates the OpenAI backend. A missing API key is a
// configuration error surfaced before any chunk work starts.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewError(ClassConfiguration, OpenAIName, errors.New("API key not set"))
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return OpenAIName }

// SupportsParallel reports that the hosted API tolerates concurrent requests.
func (p *OpenAIProvider) SupportsParallel() bool { return true }

// Transform rewrites text via a chat completion.
func (p *OpenAIProvider) Transform(ctx context.Context, req TransformRequest) (string, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.Text),
		},
		Temperature: openai.Float(p.temperature),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.classify(err)
	}

	if len(completion.Choices) == 0 {
		return "", NewError(ClassTransient, OpenAIName, errors.New("no choices in response"))
	}
	choice := completion.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", NewError(ClassContentPolicy, OpenAIName, errors.New("response blocked by content filter"))
	}

	return choice.Message.Content, nil
}

// classify maps SDK errors onto the engine's taxonomy.
func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := fmt.Sprintf("%s %s", apiErr.Code, apiErr.Message)
		return classifyStatus(OpenAIName, apiErr.StatusCode, body)
	}
	return classifyNetErr(OpenAIName, err)
}

var _ Provider = (*OpenAIProvider)(nil)
