package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr = "127.0.0.1:3000"

	FallbackModeLog     = "log"
	FallbackModeWebhook = "webhook"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Fallback FallbackConfig `yaml:"fallback"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr               string        `yaml:"addr"`
	AllowedOrigins     []string      `yaml:"allowedOrigins"`
	MaxSendBytes       int64         `yaml:"maxSendBytes"`
	StreamMaxGlobal    int           `yaml:"streamMaxGlobal"`
	StreamMaxPerClient int           `yaml:"streamMaxPerClient"`
	SendRPS            float64       `yaml:"sendRPS"`
	SendBurst          int           `yaml:"sendBurst"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
}

type DeliveryConfig struct {
	ReconnectPolicy   string        `yaml:"reconnectPolicy"`
	Shards            int           `yaml:"shards"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

type FallbackConfig struct {
	Mode           string        `yaml:"mode"`
	WebhookURL     string        `yaml:"webhookURL"`
	WebhookSecret  string        `yaml:"webhookSecret"`
	WebhookTimeout time.Duration `yaml:"webhookTimeout"`
	WebhookRPS     float64       `yaml:"webhookRPS"`
	WebhookBurst   int           `yaml:"webhookBurst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:               DefaultAddr,
			AllowedOrigins:     []string{"*"},
			MaxSendBytes:       1 << 20,
			StreamMaxGlobal:    4096,
			StreamMaxPerClient: 16,
			SendRPS:            50,
			SendBurst:          100,
			ShutdownTimeout:    5 * time.Second,
		},
		Delivery: DeliveryConfig{
			ReconnectPolicy:   "replace",
			Shards:            32,
			WriteTimeout:      10 * time.Second,
			HeartbeatInterval: 20 * time.Second,
		},
		Fallback: FallbackConfig{
			Mode:           FallbackModeLog,
			WebhookTimeout: 5 * time.Second,
			WebhookRPS:     20,
			WebhookBurst:   40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configPath, or the first default candidate that exists when
// configPath is empty, then applies RELAY_* environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeInto(&cfg, data); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	} else {
		for _, path := range []string{"configs/config.yaml", "go-backend/configs/config.yaml"} {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := decodeInto(&cfg, data); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			break
		}
	}

	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func ApplyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Addr, "RELAY_ADDR")
	if raw := strings.TrimSpace(os.Getenv("RELAY_ALLOWED_ORIGINS")); raw != "" {
		origins := make([]string, 0)
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	setString(&cfg.Delivery.ReconnectPolicy, "RELAY_RECONNECT_POLICY")
	setDuration(&cfg.Delivery.WriteTimeout, "RELAY_WRITE_TIMEOUT")
	setDuration(&cfg.Delivery.HeartbeatInterval, "RELAY_HEARTBEAT_INTERVAL")
	setString(&cfg.Fallback.Mode, "RELAY_FALLBACK_MODE")
	setString(&cfg.Fallback.WebhookURL, "RELAY_FALLBACK_WEBHOOK_URL")
	setString(&cfg.Fallback.WebhookSecret, "RELAY_FALLBACK_WEBHOOK_SECRET")
	setString(&cfg.Log.Level, "RELAY_LOG_LEVEL")
	setString(&cfg.Log.Format, "RELAY_LOG_FORMAT")

	if raw := strings.TrimSpace(os.Getenv("RELAY_SEND_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			cfg.Server.SendRPS = v
		}
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxSendBytes <= 0 {
		return errors.New("server.maxSendBytes must be positive")
	}
	if c.Server.StreamMaxGlobal <= 0 || c.Server.StreamMaxPerClient <= 0 {
		return errors.New("server stream limits must be positive")
	}
	switch c.Delivery.ReconnectPolicy {
	case "replace", "reject":
	default:
		return fmt.Errorf("delivery.reconnectPolicy must be replace or reject, got %q", c.Delivery.ReconnectPolicy)
	}
	if c.Delivery.WriteTimeout <= 0 {
		return errors.New("delivery.writeTimeout must be positive")
	}
	if c.Delivery.HeartbeatInterval <= 0 {
		return errors.New("delivery.heartbeatInterval must be positive")
	}
	switch c.Fallback.Mode {
	case FallbackModeLog:
	case FallbackModeWebhook:
		if strings.TrimSpace(c.Fallback.WebhookURL) == "" {
			return errors.New("fallback.webhookURL is required for webhook mode")
		}
	default:
		return fmt.Errorf("fallback.mode must be log or webhook, got %q", c.Fallback.Mode)
	}
	return nil
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, env string) {
	raw := strings.TrimSpace(os.Getenv(env))
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		*dst = d
	}
}
