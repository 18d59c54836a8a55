package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != ProviderMock {
		t.Errorf("provider = %q, want mock", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 2*time.Second || cfg.Retry.MaxDelay != 10*time.Second {
		t.Errorf("retry defaults = %+v", cfg.Retry)
	}
	if !cfg.Retry.Policy().Jitter {
		t.Error("jitter should default on")
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.RateLimitRPM != 60 {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if r := cfg.Pricing.RatesFor(cfg.LLM.Model); r.InputPerMillion != 3 || r.OutputPerMillion != 15 {
		t.Errorf("default rates = %+v", r)
	}
	if len(cfg.Routing.Triggers) == 0 {
		t.Error("routing triggers should default")
	}
	if cfg.Kafka.Enabled() {
		t.Error("kafka should be off without brokers")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`llm:
  provider: anthropic
  model: opus
  timeout: 45s
retry:
  max_attempts: 5
  base_delay: 100ms
  jitter: false
pricing:
  default:
    input_per_million: 1
    output_per_million: 2
server:
  addr: ":9000"
tools:
  refund_failure_rate: 0.25
routing:
  triggers:
    billing: [invoice]
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "env-ant")
	t.Setenv("TICKETFLOW_ADDR", ":7000")
	t.Setenv("TICKETFLOW_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("TICKETFLOW_OTLP_ENDPOINT", "otel:4317")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Model != "claude-opus-4-20250514" {
		t.Errorf("model alias not resolved: %q", cfg.LLM.Model)
	}
	if cfg.LLM.Timeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.LLM.Timeout)
	}
	p := cfg.Retry.Policy()
	if p.MaxAttempts != 5 || p.BaseDelay != 100*time.Millisecond || p.Jitter {
		t.Errorf("policy = %+v", p)
	}
	if cfg.Pricing.RatesFor("unknown-model").InputPerMillion != 1 {
		t.Error("default pricing entry should apply to unknown models")
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("env should override file addr, got %q", cfg.Server.Addr)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.OTLPEndpoint != "otel:4317" {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
	if !cfg.HasProvider(ProviderAnthropic) || cfg.HasProvider(ProviderOpenAI) {
		t.Error("provider availability should follow API keys")
	}
	if got := cfg.Routing.Triggers["billing"]; len(got) != 1 || got[0] != "invoice" {
		t.Errorf("routing triggers = %v", cfg.Routing.Triggers)
	}
}

func TestConfigIgnoresFileAPIKeys(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("AnthropicAPIKey: file-ant\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "" {
		t.Fatalf("expected file API keys to be ignored")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearEnv(t)

	tests := map[string]string{
		"unknown provider":  "llm:\n  provider: acme\n",
		"failure rate":      "tools:\n  email_failure_rate: 2\n",
		"unknown target":    "routing:\n  triggers:\n    sales: [quote]\n",
		"malformed yaml":    "llm: [\n",
		"negative attempts": "retry:\n  max_attempts: -1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(body), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("an explicit missing file is an error")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "DEEPSEEK_API_KEY",
		"TICKETFLOW_PROVIDER", "TICKETFLOW_MODEL", "TICKETFLOW_ADDR",
		"TICKETFLOW_LOG_LEVEL", "TICKETFLOW_LOG_FORMAT",
		"TICKETFLOW_KAFKA_BROKERS", "TICKETFLOW_KAFKA_TOPIC",
		"TICKETFLOW_DATABASE_DSN", "TICKETFLOW_OTLP_ENDPOINT", "TICKETFLOW_RATE_LIMIT_RPM",
	} {
		t.Setenv(key, "")
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
