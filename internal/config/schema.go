package config

// Config is the full application configuration.
type Config struct {
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Defaults  Defaults                  `mapstructure:"defaults" yaml:"defaults"`
}

// ProviderConfig describes one LLM backend.
type ProviderConfig struct {
	Type    string `mapstructure:"type" yaml:"type"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// Defaults holds job-level tunables.
type Defaults struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"`
	Mode              string  `mapstructure:"mode" yaml:"mode"`
	Workers           int     `mapstructure:"workers" yaml:"workers"`
	ChunkSize         int     `mapstructure:"chunk_size" yaml:"chunk_size"`
	FallbackThreshold int     `mapstructure:"fallback_threshold" yaml:"fallback_threshold"`
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds int     `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	CleanupRatio      float64 `mapstructure:"cleanup_ratio" yaml:"cleanup_ratio"`
	SimplifyRatio     float64 `mapstructure:"simplify_ratio" yaml:"simplify_ratio"`
	MinBisectSize     int     `mapstructure:"min_bisect_size" yaml:"min_bisect_size"`
	AuditDir          string  `mapstructure:"audit_dir" yaml:"audit_dir"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: true,
			},
			"gemini": {
				Type:    "gemini",
				Model:   "gemini-2.0-flash",
				APIKey:  "${GEMINI_API_KEY}",
				Enabled: false,
			},
			"ollama": {
				Type:    "ollama",
				Model:   "llama3.1",
				BaseURL: "http://localhost:11434",
				Enabled: false,
			},
		},
		Defaults: Defaults{
			Provider:          "openai",
			Mode:              "cleanup",
			Workers:           3,
			ChunkSize:         6000,
			FallbackThreshold: 10,
			MaxRetries:        3,
			RetryDelaySeconds: 1,
			CleanupRatio:      0.7,
			SimplifyRatio:     0.3,
			MinBisectSize:     2000,
			AuditDir:          "audit",
		},
	}
}
