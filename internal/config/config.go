package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Dir is the name of the per-project and per-user configuration directory.
const Dir = ".uvmgen"

// Config is the top-level configuration structure.
type Config struct {
	Pipeline   string                  `yaml:"pipeline"`
	ModuleInfo string                  `yaml:"module_info"`
	Provider   ProviderConfig          `yaml:"provider"`
	Generation GenerationConfig        `yaml:"generation"`
	Retry      RetryConfig             `yaml:"retry"`
	Extract    ExtractConfig           `yaml:"extract"`
	Artifacts  ArtifactsConfig         `yaml:"artifacts"`
	History    HistoryConfig           `yaml:"history"`
	Metrics    MetricsConfig           `yaml:"metrics"`
	Pricing    map[string]PricingEntry `yaml:"pricing,omitempty"`
	LogLevel   string                  `yaml:"log_level"`
}

// ProviderConfig selects and addresses the generative backend.
type ProviderConfig struct {
	// Kind is "http" (raw generateContent calls) or "genai" (Google GenAI SDK).
	Kind      string `yaml:"kind"`
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Timeout   string `yaml:"timeout"`
}

type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

// RetryConfig bounds retries of transport faults. MaxAttempts counts the first try.
type RetryConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

type ExtractConfig struct {
	Language string `yaml:"language"`
}

type ArtifactsConfig struct {
	// Policy is one of "overwrite", "timestamped", "content-addressed".
	Policy string `yaml:"policy"`
}

// HistoryConfig enables the Redis invocation history when RedisAddr is set.
type HistoryConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
	TTL           string `yaml:"ttl"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// PricingEntry is USD per million tokens.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

var validPolicies = map[string]bool{
	"overwrite":         true,
	"timestamped":       true,
	"content-addressed": true,
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if c.Pipeline == "" {
		return fmt.Errorf("pipeline is required")
	}
	if c.ModuleInfo == "" {
		return fmt.Errorf("module_info is required")
	}
	switch c.Provider.Kind {
	case "http", "genai":
	default:
		return fmt.Errorf("provider.kind must be \"http\" or \"genai\", got %q", c.Provider.Kind)
	}
	if c.Provider.Kind == "http" && c.Provider.Endpoint == "" {
		return fmt.Errorf("provider.endpoint is required")
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if _, err := parseDuration(c.Provider.Timeout, 0); err != nil {
		return fmt.Errorf("provider.timeout: %w", err)
	}
	if c.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("generation.max_output_tokens must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Extract.Language == "" {
		return fmt.Errorf("extract.language is required")
	}
	if !validPolicies[c.Artifacts.Policy] {
		return fmt.Errorf("artifacts.policy %q is not one of overwrite, timestamped, content-addressed", c.Artifacts.Policy)
	}
	return nil
}

// APIKey returns the backend credential from the configured environment variable.
func (c *Config) APIKey() string {
	if c.Provider.APIKeyEnv == "" {
		return os.Getenv("GEMINI_API_KEY")
	}
	return os.Getenv(c.Provider.APIKeyEnv)
}

// Timeout is the per-call network deadline shared by every stage.
func (c *Config) Timeout() time.Duration {
	d, _ := parseDuration(c.Provider.Timeout, 300*time.Second)
	return d
}

func (c *Config) InitialBackoff() time.Duration {
	d, _ := parseDuration(c.Retry.InitialBackoff, time.Second)
	return d
}

func (c *Config) MaxBackoff() time.Duration {
	d, _ := parseDuration(c.Retry.MaxBackoff, 30*time.Second)
	return d
}

// HistoryTTL returns 0 (no expiry) when unset or invalid.
func (c *Config) HistoryTTL() time.Duration {
	d, _ := parseDuration(c.History.TTL, 0)
	return d
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback, err
	}
	return d, nil
}

// Load resolves config from project → user → defaults.
func Load() (*Config, error) {
	cfg := Defaults()

	// user-level config
	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, Dir, "config.yaml")
		if err := mergeFile(cfg, userPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	// project-level config (highest priority)
	projectPath := filepath.Join(Dir, "config.yaml")
	if err := mergeFile(cfg, projectPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return cfg, nil
}

func mergeFile(dst *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// A literal key in the file is a mistake we want to surface early.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if p, ok := raw["provider"].(map[string]interface{}); ok {
			if _, hasKey := p["api_key"]; hasKey {
				return fmt.Errorf("configuration field 'provider.api_key' is not supported. "+
					"Remove it from %s and export the key in the environment variable named by provider.api_key_env.", path)
			}
		}
	}
	return yaml.Unmarshal(data, dst)
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Pipeline:   "uvm",
		ModuleInfo: "./module_info.json",
		Provider: ProviderConfig{
			Kind:      "http",
			Endpoint:  "https://generativelanguage.googleapis.com/v1beta",
			APIKeyEnv: "GEMINI_API_KEY",
			Model:     "gemini-2.5-pro",
			Timeout:   "300s",
		},
		Generation: GenerationConfig{
			Temperature:     0.2,
			MaxOutputTokens: 4096,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
		},
		Extract: ExtractConfig{
			Language: "systemverilog",
		},
		Artifacts: ArtifactsConfig{
			Policy: "overwrite",
		},
		History: HistoryConfig{
			Prefix: "uvmgen:history:",
		},
		LogLevel: "info",
	}
}
