package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "0.0.0.0:9000"
  allowedOrigins: ["https://app.example.org"]
delivery:
  reconnectPolicy: reject
  heartbeatInterval: 5s
fallback:
  mode: webhook
  webhookURL: "https://push.example.org/notify"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://app.example.org" {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Delivery.ReconnectPolicy != "reject" {
		t.Fatalf("unexpected policy: %q", cfg.Delivery.ReconnectPolicy)
	}
	if cfg.Delivery.HeartbeatInterval != 5*time.Second {
		t.Fatalf("unexpected heartbeat: %s", cfg.Delivery.HeartbeatInterval)
	}
	if cfg.Delivery.WriteTimeout != 10*time.Second {
		t.Fatalf("unset fields should keep defaults, got writeTimeout=%s", cfg.Delivery.WriteTimeout)
	}
	if cfg.Fallback.Mode != FallbackModeWebhook {
		t.Fatalf("unexpected fallback mode: %q", cfg.Fallback.Mode)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "server:\n  adress: \"x\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != DefaultAddr || cfg.Fallback.Mode != FallbackModeLog {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", "127.0.0.1:4000")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RELAY_WRITE_TIMEOUT", "2s")
	t.Setenv("RELAY_HEARTBEAT_INTERVAL", "not-a-duration")
	t.Setenv("RELAY_SEND_RPS", "7.5")
	t.Setenv("RELAY_LOG_LEVEL", "debug")

	cfg := Default()
	ApplyEnvOverrides(&cfg)

	if cfg.Server.Addr != "127.0.0.1:4000" {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	if strings.Join(cfg.Server.AllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Delivery.WriteTimeout != 2*time.Second {
		t.Fatalf("unexpected write timeout: %s", cfg.Delivery.WriteTimeout)
	}
	if cfg.Delivery.HeartbeatInterval != 20*time.Second {
		t.Fatalf("invalid duration should be ignored, got %s", cfg.Delivery.HeartbeatInterval)
	}
	if cfg.Server.SendRPS != 7.5 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected overrides: rps=%v level=%q", cfg.Server.SendRPS, cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty addr":       func(c *Config) { c.Server.Addr = "" },
		"bad policy":       func(c *Config) { c.Delivery.ReconnectPolicy = "merge" },
		"zero timeout":     func(c *Config) { c.Delivery.WriteTimeout = 0 },
		"webhook no url":   func(c *Config) { c.Fallback.Mode = FallbackModeWebhook },
		"unknown fallback": func(c *Config) { c.Fallback.Mode = "sms" },
		"zero body limit":  func(c *Config) { c.Server.MaxSendBytes = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
