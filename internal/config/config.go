package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names accepted by the provider switch.
const (
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
)

// Config describes the top-level application configuration loaded from YAML, .env and ENV.
type Config struct {
	Provider    string        `mapstructure:"provider"` // openai or huggingface
	OpenAI      ProviderEntry `mapstructure:"openai"`
	HuggingFace ProviderEntry `mapstructure:"huggingface"`
	Scan        ScanConfig    `mapstructure:"scan"`
	Agent       AgentConfig   `mapstructure:"agent"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Server      ServerConfig  `mapstructure:"server"`
}

// ProviderEntry holds connection settings for one LLM backend.
type ProviderEntry struct {
	ModelID string        `mapstructure:"model_id"`
	APIKey  string        `mapstructure:"api_key"`  // secret, never logged
	BaseURL string        `mapstructure:"base_url"` // API base URL
	Timeout time.Duration `mapstructure:"timeout"`  // request timeout
}

// ScanConfig controls repository traversal limits.
type ScanConfig struct {
	MaxFileBytes int64    `mapstructure:"max_file_bytes"`
	MaxFiles     int      `mapstructure:"max_files"`
	SampleBytes  int      `mapstructure:"sample_bytes"`
	DenyDirs     []string `mapstructure:"deny_dirs"` // added to the built-in deny-list
}

// AgentConfig describes orchestrator parameters shared by every operation.
type AgentConfig struct {
	MaxTokens          int     `mapstructure:"max_tokens"`
	Temperature        float64 `mapstructure:"temperature"`
	SummaryTemperature float64 `mapstructure:"summary_temperature"`
	DiagramTemperature float64 `mapstructure:"diagram_temperature"`
	AnswerTemperature  float64 `mapstructure:"answer_temperature"`
	MaxContextChars    int     `mapstructure:"max_context_chars"`
	MaxContextTokens   int     `mapstructure:"max_context_tokens"` // 0 disables the token cap
	CacheSize          int     `mapstructure:"cache_size"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
	SessionCache   int    `mapstructure:"session_cache"`
}

// ProviderConfig is the immutable view of the selected provider handed to the adapter factory.
type ProviderConfig struct {
	Provider    string
	ModelID     string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// envBindings maps config keys to the environment names documented for the tool.
var envBindings = map[string][]string{
	"provider":             {"LLM_PROVIDER"},
	"openai.api_key":       {"OPENAI_API_KEY"},
	"openai.model_id":      {"OPENAI_MODEL_ID"},
	"huggingface.api_key":  {"HF_API_KEY"},
	"huggingface.model_id": {"HF_MODEL_ID"},
	"huggingface.base_url": {"HF_API_URL"},
	"agent.max_tokens":     {"MAX_TOKENS", "OPENAI_MAX_TOKENS"},
	"agent.temperature":    {"TEMPERATURE", "OPENAI_TEMPERATURE"},
}

// Load reads configuration from the provided path or an optional config.yaml in . or configs/.
// A .env file in the working directory is loaded first. Environment variables override file
// values: the documented names above, otherwise GITGPT_ with dots replaced by underscores.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GITGPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)

	v.SetDefault("openai.model_id", "gpt-5.2")
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("huggingface.model_id", "mistralai/Mistral-7B-Instruct-v0.3")
	v.SetDefault("huggingface.base_url", "https://api-inference.huggingface.co/models/")
	v.SetDefault("huggingface.timeout", 120*time.Second)

	v.SetDefault("scan.max_file_bytes", 100_000)
	v.SetDefault("scan.max_files", 5000)
	v.SetDefault("scan.sample_bytes", 8000)
	v.SetDefault("scan.deny_dirs", []string{})

	v.SetDefault("agent.max_tokens", 4096)
	v.SetDefault("agent.temperature", 0.7)
	v.SetDefault("agent.summary_temperature", 0.3)
	v.SetDefault("agent.diagram_temperature", 0.3)
	v.SetDefault("agent.answer_temperature", 0.4)
	v.SetDefault("agent.max_context_chars", 12000)
	v.SetDefault("agent.max_context_tokens", 0)
	v.SetDefault("agent.cache_size", 16)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
	v.SetDefault("server.session_cache", 64)
}

// Validate performs sanity checks on configuration values.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderHuggingFace:
	default:
		return fmt.Errorf("provider must be one of openai or huggingface, got %q", c.Provider)
	}

	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		return errors.New("agent.temperature must be within [0,1]")
	}
	for name, t := range map[string]float64{
		"summary_temperature": c.Agent.SummaryTemperature,
		"diagram_temperature": c.Agent.DiagramTemperature,
		"answer_temperature":  c.Agent.AnswerTemperature,
	} {
		if t < 0 || t > 1 {
			return fmt.Errorf("agent.%s must be within [0,1]", name)
		}
	}
	if c.Agent.MaxTokens < 0 {
		return errors.New("agent.max_tokens cannot be negative")
	}
	if c.Agent.MaxContextChars <= 0 {
		return errors.New("agent.max_context_chars must be > 0")
	}
	if c.Agent.MaxContextTokens < 0 {
		return errors.New("agent.max_context_tokens must be >= 0")
	}
	if c.Agent.CacheSize < 0 {
		return errors.New("agent.cache_size must be >= 0")
	}

	if c.Scan.MaxFileBytes <= 0 {
		return errors.New("scan.max_file_bytes must be > 0")
	}
	if c.Scan.MaxFiles < 0 {
		return errors.New("scan.max_files must be >= 0")
	}
	if c.Scan.SampleBytes < 0 {
		return errors.New("scan.sample_bytes must be >= 0")
	}

	if c.OpenAI.Timeout < 0 || c.HuggingFace.Timeout < 0 {
		return errors.New("provider timeouts must be >= 0")
	}
	if c.OpenAI.Timeout > 0 && c.HuggingFace.Timeout > 0 && c.HuggingFace.Timeout <= c.OpenAI.Timeout {
		return fmt.Errorf("huggingface.timeout (%s) must be longer than openai.timeout (%s)", c.HuggingFace.Timeout, c.OpenAI.Timeout)
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console or json, got %q", c.Logging.Format)
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}

// ProviderConfig returns the settings of the configured provider.
func (c *Config) ProviderConfig() ProviderConfig {
	entry := c.OpenAI
	if c.Provider == ProviderHuggingFace {
		entry = c.HuggingFace
	}
	return ProviderConfig{
		Provider:    c.Provider,
		ModelID:     entry.ModelID,
		APIKey:      entry.APIKey,
		BaseURL:     entry.BaseURL,
		Timeout:     entry.Timeout,
		MaxTokens:   c.Agent.MaxTokens,
		Temperature: c.Agent.Temperature,
	}
}

// MaskSecret renders a secret for display without revealing it.
func MaskSecret(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return "(not set)"
	}
	return "(set)"
}
