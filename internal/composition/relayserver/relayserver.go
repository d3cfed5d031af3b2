package relayserver

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sse-relay/go-backend/internal/adapters/httpapi"
	"sse-relay/go-backend/internal/config"
	"sse-relay/go-backend/internal/delivery"
	"sse-relay/go-backend/internal/notify"
)

// New wires registry, router, fallback notifier and HTTP transport from cfg.
func New(cfg config.Config, logger *slog.Logger) (*httpapi.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := delivery.ParsePolicy(cfg.Delivery.ReconnectPolicy)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := delivery.NewMetrics(promReg)

	notifier, err := NewNotifier(cfg.Fallback, logger)
	if err != nil {
		return nil, err
	}

	registry := delivery.NewRegistry(
		delivery.WithPolicy(policy),
		delivery.WithShards(cfg.Delivery.Shards),
		delivery.WithMetrics(metrics),
		delivery.WithLogger(logger),
	)
	router := delivery.NewRouter(registry, notifier, metrics, logger)

	opts := httpapi.Options{
		Addr:               cfg.Server.Addr,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		MaxSendBytes:       cfg.Server.MaxSendBytes,
		StreamMaxGlobal:    cfg.Server.StreamMaxGlobal,
		StreamMaxPerClient: cfg.Server.StreamMaxPerClient,
		SendRPS:            cfg.Server.SendRPS,
		SendBurst:          cfg.Server.SendBurst,
		WriteTimeout:       cfg.Delivery.WriteTimeout,
		HeartbeatInterval:  cfg.Delivery.HeartbeatInterval,
		ShutdownTimeout:    cfg.Server.ShutdownTimeout,
	}
	logger.Info("relay configured",
		"reconnect_policy", policy.String(),
		"fallback_mode", cfg.Fallback.Mode,
		"shards", cfg.Delivery.Shards,
	)
	return httpapi.NewServer(opts, registry, router, promReg, logger), nil
}

// NewNotifier builds the fallback path. Webhook mode also keeps the log
// notifier so every fallback shows up in the logs.
func NewNotifier(cfg config.FallbackConfig, logger *slog.Logger) (delivery.Notifier, error) {
	logNotifier := notify.NewLogNotifier(logger)
	switch cfg.Mode {
	case "", config.FallbackModeLog:
		return logNotifier, nil
	case config.FallbackModeWebhook:
		webhook, err := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     cfg.WebhookURL,
			Secret:  cfg.WebhookSecret,
			Timeout: cfg.WebhookTimeout,
			RPS:     cfg.WebhookRPS,
			Burst:   cfg.WebhookBurst,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("fallback webhook: %w", err)
		}
		return notify.Multi{logNotifier, webhook}, nil
	default:
		return nil, fmt.Errorf("unknown fallback mode %q", cfg.Mode)
	}
}
