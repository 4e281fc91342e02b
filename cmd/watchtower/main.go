// Watchtower monitor server — ingests hook events from AI coding
// agents, maintains the agent registry, and streams updates to
// dashboard subscribers over WebSocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentfleet/watchtower/pkg/api"
	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/events"
	"github.com/agentfleet/watchtower/pkg/metrics"
	"github.com/agentfleet/watchtower/pkg/registry"
	"github.com/agentfleet/watchtower/pkg/retention"
	"github.com/agentfleet/watchtower/pkg/router"
	"github.com/agentfleet/watchtower/pkg/sanitize"
	"github.com/agentfleet/watchtower/pkg/store"
	"github.com/agentfleet/watchtower/pkg/version"
)

func main() {
	envPath := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting watchtower",
		"version", version.Full(),
		"listen_addr", cfg.ListenAddr,
		"store_backend", cfg.Store.Backend)

	ctx := context.Background()

	// 1. Store backend (memory or redis).
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing store", "error", err)
		}
	}()

	// 2. Registry, reconciled from whatever the store kept.
	sanitizer := sanitize.New(cfg.Sanitize.MaxStringLen, cfg.Sanitize.MaxDepth)
	reg, err := registry.New(ctx, cfg.Registry, sanitizer, st)
	if err != nil {
		slog.Error("Failed to initialize registry", "error", err)
		os.Exit(1)
	}

	// 3. Fanout and event pipeline.
	rec := metrics.NewRecorder()
	rec.SetAgents(reg.Count())
	broadcaster := events.NewBroadcaster(cfg.Stream.MaxSubscriberQueue, rec)
	rt := router.New(reg, broadcaster, rec)
	connManager := events.NewConnectionManager(broadcaster, cfg.Stream)

	// 4. Background retention.
	retentionSvc := retention.NewService(cfg.Retention, cfg.Registry.MaxLogsPerAgent, reg, rt, rec)
	retentionSvc.Start(ctx)

	// 5. HTTP server (non-blocking).
	httpServer := api.NewServer(cfg, rt, reg, broadcaster, connManager, st, rec)
	go func() {
		if err := httpServer.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("HTTP server listening", "addr", cfg.ListenAddr)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("Shutdown signal received", "signal", sig)

	// Ordered shutdown: stop retention first so no new deletes are
	// published, then drain HTTP (which also ends WebSocket reads).
	retentionSvc.Stop()

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
