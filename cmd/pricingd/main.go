// Command pricingd runs the pricing pipeline orchestrator as a standalone
// service: the scheduled trigger, the optional change-stream watcher and
// the pipeline HTTP API.
//
// Usage:
//
//	PRICING_STORE_URL=mongodb://localhost:27017/pricing \
//	PRICING_AGENT_URL=http://agents:9000/agents \
//	PRICING_WATCH_CHANGES=true \
//	go run ./cmd/pricingd
//
// Then in another terminal:
//
//	# Trigger a run
//	curl -X POST http://localhost:8080/pipeline/trigger \
//	  -H "Content-Type: application/json" \
//	  -d '{"reason":"manual"}'
//
//	# Check status and history
//	curl http://localhost:8080/pipeline/status
//	curl http://localhost:8080/pipeline/history?limit=5
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/xraph/forge"
	"golang.org/x/sync/errgroup"

	"github.com/shivramiyer22/rideshare-sub001/extension"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))

	if err := run(logger); err != nil {
		logger.Error("pricingd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := envOr("PRICING_ADDR", ":8080")

	// ──────────────────────────────────────────────────
	// 1. Configure the pricing extension from the environment
	// ──────────────────────────────────────────────────

	cfg := extension.DefaultConfig()
	cfg.StoreURL = envOr("PRICING_STORE_URL", cfg.StoreURL)
	cfg.AgentURL = os.Getenv("PRICING_AGENT_URL")
	cfg.AgentCodec = envOr("PRICING_AGENT_CODEC", cfg.AgentCodec)
	cfg.BasePath = os.Getenv("PRICING_BASE_PATH")
	if v, ok := os.LookupEnv("PRICING_SCHEDULE"); ok {
		// An explicit empty value disables scheduled runs.
		cfg.Pipeline.Schedule = v
		cfg.DisableScheduler = v == ""
	}
	cfg.WatchChanges = envBool("PRICING_WATCH_CHANGES")
	if v := os.Getenv("PRICING_WATCH_COLLECTIONS"); v != "" {
		cfg.WatchCollections = strings.Split(v, ",")
	}

	ext := extension.New(
		extension.WithConfig(cfg),
		extension.WithLogger(logger),
	)

	// ──────────────────────────────────────────────────
	// 2. Create Forge app and register the extension
	// ──────────────────────────────────────────────────

	app := forge.New(
		forge.WithAppName("pricingd"),
		forge.WithAppVersion(extension.ExtensionVersion),
		forge.WithHTTPAddress(addr),
	)

	if err := ext.Register(app); err != nil {
		return err
	}
	if err := ext.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ──────────────────────────────────────────────────
	// 3. Serve until a shutdown signal
	// ──────────────────────────────────────────────────

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("pricingd listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		if err := ext.Stop(shutdownCtx); err != nil {
			logger.Error("pricing shutdown error", slog.String("error", err.Error()))
		}
		return httpErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("goodbye")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(envOr("PRICING_LOG_LEVEL", "info"))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
