package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Policies PolicyConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
	Review   ReviewConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port           int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout    time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"90s"`
	MaxRequestSize int64         `envconfig:"SERVER_MAX_REQUEST_SIZE" default:"10485760"` // 10MB
}

// LLMConfig holds the text-generation client settings.
// The API key is read here once and injected into the generator; nothing
// else in the tree reads credentials from the environment.
type LLMConfig struct {
	APIKey      string        `envconfig:"OPENROUTER_API_KEY"`
	BaseURL     string        `envconfig:"LLM_BASE_URL" default:"https://openrouter.ai/api/v1"`
	Model       string        `envconfig:"OPENAI_MODEL" default:"openai/gpt-4o-mini"`
	Timeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	Temperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.1"`
	MaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"400"`
	Referer     string        `envconfig:"LLM_REFERER" default:"https://browser-guardrail/"`
	Title       string        `envconfig:"LLM_TITLE" default:"browser-guardrail"`
}

// PolicyConfig holds user override policy settings
type PolicyConfig struct {
	OverridesPath string `envconfig:"OVERRIDES_PATH"`
	WatchChanges  bool   `envconfig:"OVERRIDES_WATCH" default:"true"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Format      string `envconfig:"LOG_FORMAT" default:"json"` // json, console
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	AuditPath   string `envconfig:"AUDIT_LOG_PATH"` // empty = stdout
}

// MetricsConfig holds metrics/monitoring settings
type MetricsConfig struct {
	Enabled  bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Endpoint string `envconfig:"METRICS_ENDPOINT" default:"/metrics"`
}

// ReviewConfig holds escalation review settings
type ReviewConfig struct {
	Timeout   time.Duration `envconfig:"REVIEW_TIMEOUT" default:"5m"`
	Retention time.Duration `envconfig:"REVIEW_RETENTION" default:"1h"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that would make the pipeline unusable
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout))
	}
	if c.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLM.MaxTokens))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be within [0,2], got %v", c.LLM.Temperature))
	}
	if c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("LLM_BASE_URL must not be empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port))
	}
	if c.Review.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("REVIEW_TIMEOUT must be positive, got %s", c.Review.Timeout))
	}
	if c.Review.Retention <= 0 {
		errs = append(errs, fmt.Errorf("REVIEW_RETENTION must be positive, got %s", c.Review.Retention))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
