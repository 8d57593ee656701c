// Package config provides configuration management for the author digest service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the author digest service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains generation provider settings.
	LLM LLMConfig `mapstructure:"llm"`
	// WorkSources contains bibliographic source API configurations.
	WorkSources WorkSourcesConfig `mapstructure:"work_sources"`
	// Digest contains extraction pipeline and cache settings.
	Digest DigestConfig `mapstructure:"digest"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	// The SSE progress stream ignores this via per-route response control.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds generation provider configuration.
type LLMConfig struct {
	// Provider is the default provider (openai, anthropic, gemini).
	Provider string `mapstructure:"provider"`
	// Temperature is the sampling temperature for synthesis calls.
	Temperature float64 `mapstructure:"temperature"`
	// Timeout is the timeout for generation API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI ProviderConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	// Gemini contains Google Gemini-specific settings.
	Gemini ProviderConfig `mapstructure:"gemini"`
}

// ProviderConfig holds settings for one generation provider.
type ProviderConfig struct {
	// APIKey is the provider API key, loaded exclusively from the
	// environment (e.g. AUTHORDIGEST_LLM_OPENAI_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the model identifier to use by default.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (for custom endpoints and tests).
	BaseURL string `mapstructure:"base_url"`
}

// WorkSourcesConfig holds configuration for the bibliographic source APIs.
type WorkSourcesConfig struct {
	// OpenAlex contains OpenAlex API settings.
	OpenAlex WorkSourceConfig `mapstructure:"openalex"`
	// PubMed contains NCBI E-utilities settings for the abstract fallback.
	PubMed WorkSourceConfig `mapstructure:"pubmed"`
}

// WorkSourceConfig holds configuration for a single work source API.
type WorkSourceConfig struct {
	// APIKey is the API key, loaded from the environment
	// (e.g. AUTHORDIGEST_WORK_SOURCES_PUBMED_API_KEY).
	APIKey string `mapstructure:"-"`
	// Email is the contact email sent with requests (OpenAlex polite pool,
	// NCBI identification).
	Email string `mapstructure:"email"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
}

// DigestConfig holds extraction pipeline and cache settings.
type DigestConfig struct {
	// MaxWorkers is the default worker pool size for extraction.
	MaxWorkers int `mapstructure:"max_workers"`
	// MaxWorkersLimit caps the per-request worker override.
	MaxWorkersLimit int `mapstructure:"max_workers_limit"`
	// RequestsPerMinute is the default aggregate generation request ceiling.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// RequestsPerMinuteLimit caps the per-request RPM override.
	RequestsPerMinuteLimit int `mapstructure:"requests_per_minute_limit"`
	// MaxRetries is the per-item retry ceiling for transient provider errors.
	MaxRetries int `mapstructure:"max_retries"`
	// CacheDir is the directory for per-subject extract snapshots.
	// Empty means the OS temp directory.
	CacheDir string `mapstructure:"cache_dir"`
	// ProgressBuffer is the per-session progress channel capacity.
	ProgressBuffer int `mapstructure:"progress_buffer"`
	// KeepAliveInterval is the SSE idle timeout before a keep-alive is sent.
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("AUTHORDIGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/authordigest")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// Bare provider variables (GEMINI_API_KEY etc.) are honored as fallbacks so a
// plain .env file works.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = firstEnv("AUTHORDIGEST_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = firstEnv("AUTHORDIGEST_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	cfg.LLM.Gemini.APIKey = firstEnv("AUTHORDIGEST_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")

	cfg.WorkSources.OpenAlex.APIKey = os.Getenv("AUTHORDIGEST_WORK_SOURCES_OPENALEX_API_KEY")
	cfg.WorkSources.PubMed.APIKey = firstEnv("AUTHORDIGEST_WORK_SOURCES_PUBMED_API_KEY", "NCBI_API_KEY")
}

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s") // SSE streams stay open indefinitely
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.temperature", 0.5)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.base_url", "https://generativelanguage.googleapis.com")

	// Work sources defaults - OpenAlex
	v.SetDefault("work_sources.openalex.enabled", true)
	v.SetDefault("work_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("work_sources.openalex.email", "")
	v.SetDefault("work_sources.openalex.timeout", "30s")
	v.SetDefault("work_sources.openalex.rate_limit", 10.0)

	// Work sources defaults - PubMed
	v.SetDefault("work_sources.pubmed.enabled", true)
	v.SetDefault("work_sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("work_sources.pubmed.email", "")
	v.SetDefault("work_sources.pubmed.timeout", "30s")
	v.SetDefault("work_sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key

	// Digest defaults
	v.SetDefault("digest.max_workers", 5)
	v.SetDefault("digest.max_workers_limit", 10)
	v.SetDefault("digest.requests_per_minute", 50)
	v.SetDefault("digest.requests_per_minute_limit", 100)
	v.SetDefault("digest.max_retries", 3)
	v.SetDefault("digest.cache_dir", "")
	v.SetDefault("digest.progress_buffer", 1000)
	v.SetDefault("digest.keep_alive_interval", "60s")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate LLM provider
	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid llm temperature: %g", c.LLM.Temperature)
	}

	// Validate digest settings
	if c.Digest.MaxWorkers <= 0 {
		return fmt.Errorf("digest max_workers must be positive: %d", c.Digest.MaxWorkers)
	}
	if c.Digest.MaxWorkers > c.Digest.MaxWorkersLimit {
		return fmt.Errorf("digest max_workers (%d) exceeds limit (%d)", c.Digest.MaxWorkers, c.Digest.MaxWorkersLimit)
	}
	if c.Digest.RequestsPerMinute <= 0 {
		return fmt.Errorf("digest requests_per_minute must be positive: %d", c.Digest.RequestsPerMinute)
	}
	if c.Digest.RequestsPerMinute > c.Digest.RequestsPerMinuteLimit {
		return fmt.Errorf("digest requests_per_minute (%d) exceeds limit (%d)",
			c.Digest.RequestsPerMinute, c.Digest.RequestsPerMinuteLimit)
	}
	if c.Digest.MaxRetries < 0 {
		return fmt.Errorf("digest max_retries must not be negative: %d", c.Digest.MaxRetries)
	}
	if c.Digest.ProgressBuffer <= 0 {
		return fmt.Errorf("digest progress_buffer must be positive: %d", c.Digest.ProgressBuffer)
	}

	return nil
}
