package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HF_TOKEN", "")
	t.Setenv("CHATRELAY_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.ContextWindow != 4 || cfg.Gateway.RetentionSize != 6 {
		t.Fatalf("unexpected windows %d/%d", cfg.Gateway.ContextWindow, cfg.Gateway.RetentionSize)
	}
	if cfg.Gateway.MaxNewTokens != 128 || cfg.Gateway.Temperature != 0.8 {
		t.Fatalf("unexpected sampling defaults %+v", cfg.Gateway)
	}
	if cfg.Gateway.Timeout() != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Gateway.Timeout())
	}
	if cfg.TokenConfigured() {
		t.Fatalf("token should not be configured")
	}
	if cfg.Server.Name != "chatrelay" {
		t.Fatalf("unexpected service name %q", cfg.Server.Name)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"server": {"address": ":9000"},
		"gateway": {"family": "chatml", "context_window": 2, "user_label": "Вы", "assistant_label": "Я"},
		"replies": {"busy": "wait please", "fallbacks": ["one", "two"]}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("HF_TOKEN", "hf_secret")
	t.Setenv("CHATRELAY_GATEWAY_RETENTION_SIZE", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("expected file address, got %q", cfg.Server.Address)
	}
	if cfg.Gateway.Family != "chatml" || cfg.Gateway.ContextWindow != 2 {
		t.Fatalf("file values not applied: %+v", cfg.Gateway)
	}
	if cfg.Gateway.UserLabel != "Вы" || cfg.Gateway.AssistantLabel != "Я" {
		t.Fatalf("labels not applied: %+v", cfg.Gateway)
	}
	if cfg.Gateway.RetentionSize != 10 {
		t.Fatalf("env override not applied, got %d", cfg.Gateway.RetentionSize)
	}
	if cfg.Gateway.AuthToken != "hf_secret" || !cfg.TokenConfigured() {
		t.Fatalf("HF_TOKEN not bound")
	}
	if cfg.Replies.Busy != "wait please" || len(cfg.Replies.Fallbacks) != 2 {
		t.Fatalf("replies not applied: %+v", cfg.Replies)
	}
	// untouched keys keep their defaults
	if cfg.Gateway.MaxNewTokens != 128 {
		t.Fatalf("expected default max_new_tokens, got %d", cfg.Gateway.MaxNewTokens)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Gateway: GatewayConfig{TimeoutSeconds: 30, ContextWindow: 4, RetentionSize: 6},
			Workers: WorkersConfig{Min: 1, Max: 4},
		}
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"negative window", func(c *Config) { c.Gateway.ContextWindow = -1 }, false},
		{"zero timeout", func(c *Config) { c.Gateway.TimeoutSeconds = 0 }, false},
		{"min above max", func(c *Config) { c.Workers.Min = 5 }, false},
		{"postgres driver", func(c *Config) { c.Database.Driver = "postgres" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
