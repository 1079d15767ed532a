package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the conduit server
type Config struct {
	// Server configuration
	HTTPPort int    `env:"CONDUIT_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"CONDUIT_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Executor configuration
	Executor ExecutorConfig

	// Tool adapter configuration
	Tools ToolsConfig

	// Notification configuration
	Notify NotifyConfig

	// LLM configuration (optional failure summaries)
	LLM LLMConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// RunTTL bounds how long completed runs stay queryable
	RunTTL time.Duration `env:"REDIS_RUN_TTL" envDefault:"168h"`
}

// ExecutorConfig holds stage execution configuration
type ExecutorConfig struct {
	MaxConcurrentStages int           `env:"EXECUTOR_MAX_CONCURRENT_STAGES" envDefault:"5"`
	StageTimeout        time.Duration `env:"EXECUTOR_STAGE_TIMEOUT" envDefault:"600s"`
	RunTimeout          time.Duration `env:"EXECUTOR_RUN_TIMEOUT" envDefault:"3600s"`
	ShutdownTimeout     time.Duration `env:"EXECUTOR_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MonitorInterval     time.Duration `env:"EXECUTOR_MONITOR_INTERVAL" envDefault:"30s"`
}

// ToolsConfig holds external tool configuration
type ToolsConfig struct {
	TerraformBinary string `env:"TOOL_TERRAFORM_BINARY" envDefault:"terraform"`
	TrivyBinary     string `env:"TOOL_TRIVY_BINARY" envDefault:"trivy"`
	DockerBinary    string `env:"TOOL_DOCKER_BINARY" envDefault:"docker"`
	KubectlBinary   string `env:"TOOL_KUBECTL_BINARY" envDefault:"kubectl"`

	SonarBinary  string `env:"TOOL_SONAR_BINARY" envDefault:"sonar-scanner"`
	SonarHostURL string `env:"SONAR_HOST_URL"`
	SonarToken   string `env:"SONAR_TOKEN"`
}

// NotifyConfig holds notification channel configuration
type NotifyConfig struct {
	// SlackWebhookURL enables Slack notifications when set
	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
}

// LLMConfig holds LLM provider configuration for failure summaries.
// Disabled unless an API key is set.
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	APIKey   string `env:"LLM_API_KEY"`
	Model    string `env:"LLM_MODEL"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Executor.MaxConcurrentStages < 1 {
		return fmt.Errorf("max concurrent stages must be at least 1")
	}
	if c.Executor.StageTimeout <= 0 {
		return fmt.Errorf("stage timeout must be positive")
	}
	if c.Executor.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}

	if c.LLM.APIKey != "" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("unsupported LLM provider: %s (only 'anthropic' is supported)", c.LLM.Provider)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
