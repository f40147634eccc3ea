// Package config loads ecodesk configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ecodesk configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation model configuration
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Knowledge store configuration
	Store StoreConfig `yaml:"store"`

	// Guardrail configuration
	Guard GuardConfig `yaml:"guard"`

	// Notification channel configuration
	Notify NotifyConfig `yaml:"notify"`

	// Triage dispatcher configuration
	Triage TriageConfig `yaml:"triage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	GenerateTimeout string `yaml:"generate_timeout"`
	ClassifyTimeout string `yaml:"classify_timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama or genai
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	Timeout        string `yaml:"timeout"`
}

// StoreConfig configures the knowledge store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
	TopK         int    `yaml:"top_k"`
	QueryTimeout string `yaml:"query_timeout"`
}

// GuardConfig configures guardrail behavior.
type GuardConfig struct {
	Timeout string `yaml:"timeout"`

	// EchoReason controls whether a tripped guardrail's free-text reason is
	// echoed back to the end user. Off by default: the reason can restate
	// the very content the guardrail refused.
	EchoReason bool `yaml:"echo_reason"`

	// NameDenylist holds tokens rejected by the notification name
	// validator. Empty means the built-in default list.
	NameDenylist []string `yaml:"name_denylist"`
}

// NotifyConfig configures the outbound notification channel.
type NotifyConfig struct {
	PushoverToken string `yaml:"pushover_token"`
	PushoverUser  string `yaml:"pushover_user"`
	Timeout       string `yaml:"timeout"`
}

// TriageConfig configures the dispatcher.
type TriageConfig struct {
	ClassifyTimeout string `yaml:"classify_timeout"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool     `yaml:"debug_mode"`
	Level      string   `yaml:"level"` // debug, info, warn, error
	Dir        string   `yaml:"dir"`
	Categories []string `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ecodesk",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:           "gemini-2.0-flash",
			BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
			GenerateTimeout: "60s",
			ClassifyTimeout: "15s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Timeout:        "30s",
		},

		Store: StoreConfig{
			DatabasePath: "data/ecodesk.db",
			TopK:         3,
			QueryTimeout: "30s",
		},

		Guard: GuardConfig{
			Timeout:    "15s",
			EchoReason: false,
		},

		Notify: NotifyConfig{
			Timeout: "10s",
		},

		Triage: TriageConfig{
			ClassifyTimeout: "15s",
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if key := os.Getenv("GENAI_EMBED_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
	}
	if token := os.Getenv("PUSHOVER_TOKEN"); token != "" {
		c.Notify.PushoverToken = token
	}
	if user := os.Getenv("PUSHOVER_USER"); user != "" {
		c.Notify.PushoverUser = user
	}
	if path := os.Getenv("ECODESK_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// duration parses a duration string, falling back to a default.
func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetGenerateTimeout returns the generation call timeout.
func (c *Config) GetGenerateTimeout() time.Duration {
	return duration(c.LLM.GenerateTimeout, 60*time.Second)
}

// GetClassifyTimeout returns the triage classification call timeout.
func (c *Config) GetClassifyTimeout() time.Duration {
	return duration(c.Triage.ClassifyTimeout, 15*time.Second)
}

// GetGuardTimeout returns the guardrail evaluation call timeout.
func (c *Config) GetGuardTimeout() time.Duration {
	return duration(c.Guard.Timeout, 15*time.Second)
}

// GetEmbedTimeout returns the embedding call timeout.
func (c *Config) GetEmbedTimeout() time.Duration {
	return duration(c.Embedding.Timeout, 30*time.Second)
}

// GetQueryTimeout returns the store query timeout.
func (c *Config) GetQueryTimeout() time.Duration {
	return duration(c.Store.QueryTimeout, 30*time.Second)
}

// GetNotifyTimeout returns the notification dispatch timeout.
func (c *Config) GetNotifyTimeout() time.Duration {
	return duration(c.Notify.Timeout, 10*time.Second)
}
