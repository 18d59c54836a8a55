package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	aliases := DefaultAliases()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"sonnet alias", "sonnet", "claude-sonnet-4-5-20250929"},
		{"opus alias", "opus", "claude-opus-4-20250514"},
		{"unknown alias returns input unchanged", "unknown-model", "unknown-model"},
		{"canonical model returns unchanged", "gpt-4o", "gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aliases.Resolve(tt.input); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNilAliases(t *testing.T) {
	var aliases *ModelAliases
	if aliases.Resolve("sonnet") != "sonnet" {
		t.Error("Resolve on nil should return input")
	}
	if aliases.IsAlias("sonnet") {
		t.Error("nil aliases know no alias")
	}
	if err := aliases.ValidateLLM(LLMConfig{Provider: "anthropic", Model: "x"}); err != nil {
		t.Errorf("nil aliases should not validate, got %v", err)
	}
}

func TestValidateLLM(t *testing.T) {
	aliases := DefaultAliases()

	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr bool
	}{
		{"alias resolves to provider model", LLMConfig{Provider: "anthropic", Model: "sonnet"}, false},
		{"canonical model", LLMConfig{Provider: "openai", Model: "gpt-4o-mini"}, false},
		{"mock accepts anything", LLMConfig{Provider: "mock", Model: "whatever"}, false},
		{"model from another provider", LLMConfig{Provider: "google", Model: "gpt-4o"}, true},
		{"unknown provider", LLMConfig{Provider: "acme", Model: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := aliases.ValidateLLM(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLLM() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetProviderForModel(t *testing.T) {
	aliases := DefaultAliases()
	for model, want := range map[string]string{
		"claude-sonnet-4-5-20250929": "anthropic",
		"deepseek-chat":              "deepseek",
		"mock-1":                     "mock",
		"unknown":                    "",
	} {
		if got := aliases.GetProviderForModel(model); got != want {
			t.Errorf("GetProviderForModel(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestListProvidersSorted(t *testing.T) {
	got := DefaultAliases().ListProviders()
	want := []string{"anthropic", "deepseek", "google", "mock", "openai"}
	if len(got) != len(want) {
		t.Fatalf("ListProviders() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListProviders() = %v, want %v", got, want)
		}
	}
}

func TestLoadAliases(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	content := `aliases:
  support: claude-sonnet-4-5-20250929
providers:
  anthropic:
    - claude-sonnet-4-5-20250929
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	aliases, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("LoadAliases() error = %v", err)
	}
	if aliases.Resolve("support") != "claude-sonnet-4-5-20250929" {
		t.Error("alias 'support' should resolve")
	}
	if aliases.GetProviderForModel("claude-sonnet-4-5-20250929") != "anthropic" {
		t.Error("model should belong to anthropic")
	}

	if _, err := LoadAliases(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadAliases should error for nonexistent file")
	}
}

func TestLoadAliasesWithFallback(t *testing.T) {
	setHomeEnv(t, t.TempDir())

	dir := t.TempDir()
	fallback := filepath.Join(dir, "models.yaml")
	if err := os.WriteFile(fallback, []byte("aliases:\n  test-alias: test-model\n"), 0644); err != nil {
		t.Fatal(err)
	}

	aliases, err := LoadAliasesWithFallback(fallback)
	if err != nil {
		t.Fatalf("LoadAliasesWithFallback() error = %v", err)
	}
	if aliases.Resolve("test-alias") != "test-model" {
		t.Error("fallback config should be loaded")
	}

	empty, err := LoadAliasesWithFallback(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadAliasesWithFallback() should not error, got %v", err)
	}
	if empty.Resolve("any") != "any" {
		t.Error("empty aliases should return input unchanged")
	}
}
