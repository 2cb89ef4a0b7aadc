package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromPathDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: test-key\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api key test-key, got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Worker.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Worker.MaxRetries)
	}
	if cfg.Worker.IdleBackoff != 2*time.Second {
		t.Errorf("expected default idle_backoff 2s, got %v", cfg.Worker.IdleBackoff)
	}
	if cfg.Quality.Threshold != 0.6 {
		t.Errorf("expected default quality threshold 0.6, got %v", cfg.Quality.Threshold)
	}
	if !cfg.Quality.LenientOnInternalSuccess {
		t.Error("expected lenient_on_internal_success default true")
	}
	if cfg.Timeouts.Execute != 5*time.Minute {
		t.Errorf("expected default execute timeout 5m, got %v", cfg.Timeouts.Execute)
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
worker:
  max_retries: 5
  idle_backoff: 500ms
  error_backoff: 1m
quality:
  threshold: 0.8
  lenient_on_internal_success: false
routing:
  min_confidence: 0.7
  rules_path: /etc/ldrsagent/rules.yaml
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Worker.MaxRetries != 5 {
		t.Errorf("expected max_retries 5, got %d", cfg.Worker.MaxRetries)
	}
	if cfg.Worker.IdleBackoff != 500*time.Millisecond {
		t.Errorf("expected idle_backoff 500ms, got %v", cfg.Worker.IdleBackoff)
	}
	if cfg.Worker.ErrorBackoff != time.Minute {
		t.Errorf("expected error_backoff 1m, got %v", cfg.Worker.ErrorBackoff)
	}
	if cfg.Quality.Threshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %v", cfg.Quality.Threshold)
	}
	if cfg.Quality.LenientOnInternalSuccess {
		t.Error("expected lenient_on_internal_success false")
	}
	if cfg.Routing.MinConfidence != 0.7 {
		t.Errorf("expected min_confidence 0.7, got %v", cfg.Routing.MinConfidence)
	}
	if cfg.Routing.RulesPath != "/etc/ldrsagent/rules.yaml" {
		t.Errorf("unexpected rules_path %q", cfg.Routing.RulesPath)
	}
}

func TestExpandEnvAPIKey(t *testing.T) {
	t.Setenv("LDRSAGENT_TEST_KEY", "secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("anthropic:\n  api_key: ${LDRSAGENT_TEST_KEY}\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Anthropic.APIKey != "secret" {
		t.Errorf("expected expanded api key, got %q", cfg.Anthropic.APIKey)
	}
}
