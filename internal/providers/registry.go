package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// BackendConfig describes one configured backend.
type BackendConfig struct {
	Type    string // "openai", "gemini", "ollama"
	Model   string
	APIKey  string
	BaseURL string
	Enabled bool
}

// RegistryConfig holds all configured backends keyed by name.
type RegistryConfig struct {
	Providers map[string]BackendConfig
}

// Registry constructs and holds providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *slog.Logger
}

// NewRegistry builds every enabled provider. A backend that fails to
// construct (missing key, bad type) fails the registry: misconfiguration
// surfaces before any chunk work starts.
func NewRegistry(ctx context.Context, cfg RegistryConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
	}

	for name, bc := range cfg.Providers {
		if !bc.Enabled {
			continue
		}
		p, err := build(ctx, bc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		r.providers[name] = p
		logger.Info("provider registered", "name", name, "type", bc.Type, "model", bc.Model)
	}

	return r, nil
}

func build(ctx context.Context, bc BackendConfig) (Provider, error) {
	switch bc.Type {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  bc.APIKey,
			Model:   bc.Model,
			BaseURL: bc.BaseURL,
		})
	case "gemini":
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey: bc.APIKey,
			Model:  bc.Model,
		})
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			BaseURL: bc.BaseURL,
			Model:   bc.Model,
		}), nil
	default:
		return nil, NewError(ClassConfiguration, bc.Type, fmt.Errorf("unknown provider type %q", bc.Type))
	}
}

// Register adds a provider directly. Used by tests.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
