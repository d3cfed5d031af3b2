package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sse-relay/go-backend/internal/composition/relayserver"
	"sse-relay/go-backend/internal/config"
	"sse-relay/go-backend/internal/platform/privacylog"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	addr := flag.String("addr", "", "HTTP listen address override")
	logLevel := flag.String("log-level", "", "Log level override: debug | info | warn | error")
	policy := flag.String("reconnect-policy", "", "Reconnect policy override: replace | reject")
	flag.Parse()
	if *showVersion {
		fmt.Printf("sse-relay version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	if *addr != "" {
		_ = os.Setenv("RELAY_ADDR", *addr)
	}
	if *logLevel != "" {
		_ = os.Setenv("RELAY_LOG_LEVEL", *logLevel)
	}
	if *policy != "" {
		_ = os.Setenv("RELAY_RECONNECT_POLICY", *policy)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("sse-relay config: %v", err)
	}
	level, err := privacylog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("sse-relay config: %v", err)
	}
	logger := privacylog.NewLogger(os.Stdout, level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := relayserver.New(cfg, logger)
	if err != nil {
		log.Fatalf("sse-relay failed to initialize: %v", err)
	}

	logger.Info("sse-relay starting", "version", version, "commit", commit)
	if err := srv.Run(ctx); err != nil {
		logger.Error("sse-relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sse-relay stopped")
}
