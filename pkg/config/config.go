package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/ticketflow/pkg/logging"
	"github.com/zen-systems/ticketflow/pkg/retry"
	"github.com/zen-systems/ticketflow/pkg/tracing"
	"github.com/zen-systems/ticketflow/pkg/usage"
)

// Providers that can back the model client.
const (
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
)

// Config holds the application configuration.
type Config struct {
	LLM      LLMConfig        `yaml:"llm"`
	Retry    RetryConfig      `yaml:"retry"`
	Pricing  usage.PriceTable `yaml:"pricing,omitempty"`
	Routing  RoutingConfig    `yaml:"routing,omitempty"`
	Server   ServerConfig     `yaml:"server"`
	Logging  logging.Config   `yaml:"logging"`
	Tracing  tracing.Config   `yaml:"tracing"`
	Kafka    KafkaConfig      `yaml:"kafka"`
	Database DatabaseConfig   `yaml:"database"`
	Tools    ToolsConfig      `yaml:"tools"`

	// API keys are only read from the environment.
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
	DeepSeekAPIKey  string `yaml:"-"`
	ConfigDir       string `yaml:"-"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts,omitempty"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`
	Jitter      *bool         `yaml:"jitter,omitempty"`
}

// Policy converts the section into a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Jitter:      r.Jitter == nil || *r.Jitter,
	}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimitRPM    int           `yaml:"rate_limit_rpm,omitempty"`
	RateLimitBurst  int           `yaml:"rate_limit_burst,omitempty"`
	CORSOrigins     []string      `yaml:"cors_origins,omitempty"`
	ResultCacheTTL  time.Duration `yaml:"result_cache_ttl,omitempty"`
	ResultCacheSize int64         `yaml:"result_cache_size,omitempty"`
	RequestTimeout  time.Duration `yaml:"request_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// KafkaConfig enables ticket and notification events.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// DatabaseConfig points the database_query tool at Postgres.
type DatabaseConfig struct {
	DSN string `yaml:"dsn,omitempty"`
}

// ToolsConfig tunes the built-in tools.
type ToolsConfig struct {
	EmailFailureRate  float64 `yaml:"email_failure_rate,omitempty"`
	RefundFailureRate float64 `yaml:"refund_failure_rate,omitempty"`
	Seed              uint64  `yaml:"seed,omitempty"`
}

// Load reads ~/.ticketflow/config.yaml, or path when given, and applies
// environment overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	cfg := &Config{}
	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir, "config.yaml")
	}
	if err := loadFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}
	cfg.ConfigDir = configDir

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// HasProvider returns true if the provider can be used.
func (c *Config) HasProvider(name string) bool {
	if name == ProviderMock {
		return true
	}
	return c.APIKey(name) != ""
}

// APIKey returns the key for a provider.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGoogle:
		return c.GoogleAPIKey
	case ProviderDeepSeek:
		return c.DeepSeekAPIKey
	default:
		return ""
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case ProviderMock, ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderDeepSeek:
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	for name, rate := range map[string]float64{
		"tools.email_failure_rate":  c.Tools.EmailFailureRate,
		"tools.refund_failure_rate": c.Tools.RefundFailureRate,
	} {
		if rate < 0 || rate > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, rate))
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be within [0,1], got %v", c.Tracing.SampleRate))
	}
	if err := c.Routing.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) error {
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")

	cfg.LLM.Provider = getEnvOrDefault("TICKETFLOW_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.Model = getEnvOrDefault("TICKETFLOW_MODEL", cfg.LLM.Model)
	cfg.Server.Addr = getEnvOrDefault("TICKETFLOW_ADDR", cfg.Server.Addr)
	cfg.Logging.Level = getEnvOrDefault("TICKETFLOW_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvOrDefault("TICKETFLOW_LOG_FORMAT", cfg.Logging.Format)
	cfg.Kafka.Topic = getEnvOrDefault("TICKETFLOW_KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Database.DSN = getEnvOrDefault("TICKETFLOW_DATABASE_DSN", cfg.Database.DSN)

	if brokers := os.Getenv("TICKETFLOW_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if endpoint := os.Getenv("TICKETFLOW_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.OTLPEndpoint = endpoint
	}
	if rpm := os.Getenv("TICKETFLOW_RATE_LIMIT_RPM"); rpm != "" {
		n, err := strconv.Atoi(rpm)
		if err != nil {
			return fmt.Errorf("TICKETFLOW_RATE_LIMIT_RPM: %w", err)
		}
		cfg.Server.RateLimitRPM = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderMock
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = usage.DefaultModel
	}
	cfg.LLM.Model = DefaultAliases().Resolve(cfg.LLM.Model)
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}

	def := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = def.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = def.MaxDelay
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		cfg.Retry.MaxDelay = cfg.Retry.BaseDelay
	}

	prices := usage.DefaultPrices()
	for model, rates := range cfg.Pricing {
		prices[model] = rates
	}
	cfg.Pricing = prices

	applyRoutingDefaults(&cfg.Routing)

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.RateLimitRPM == 0 {
		cfg.Server.RateLimitRPM = 60
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 10
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.ResultCacheTTL == 0 {
		cfg.Server.ResultCacheTTL = time.Hour
	}
	if cfg.Server.ResultCacheSize == 0 {
		cfg.Server.ResultCacheSize = 10_000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 2 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "ticketflow"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "ticketflow.events"
	}
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ticketflow"), nil
}
