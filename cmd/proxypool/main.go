package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proxypool/configs"
	"proxypool/internal/api"
	"proxypool/internal/app"
)

func main() {
	// 1. Load Config
	cfg, err := configs.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Setup Logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: app.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	// 3. Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Init Components
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	opts := api.Options{APIKey: cfg.APIKey}
	if cfg.RateLimitEnabled {
		opts.Limiter = newLimiter(ctx, cfg)
	}
	if cfg.APIKey == "" {
		slog.Warn("API_KEY not set, API authentication disabled")
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           api.NewServer(a.Selector, a.Orchestrator, a.Repo, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Run refresh loop
	go a.Orchestrator.Run(ctx, cfg.RefreshInterval)

	// 6. Serve API
	go func() {
		slog.Info("Starting API server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("API shutdown failed", "error", err)
	}

	slog.Info("Shutdown complete")
}

// newLimiter uses Redis when configured and reachable, in-memory counters
// otherwise.
func newLimiter(ctx context.Context, cfg *configs.Config) api.Limiter {
	if cfg.RedisURL != "" {
		client, err := api.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			slog.Info("Rate limiting via Redis", "per_minute", cfg.RateLimitPerMinute)
			return api.NewRedisLimiter(client, cfg.RateLimitPerMinute)
		}
		slog.Warn("Redis unavailable, rate limiting in memory", "error", err)
	}
	slog.Info("Rate limiting in memory", "per_minute", cfg.RateLimitPerMinute)
	return api.NewMemoryLimiter(cfg.RateLimitPerMinute)
}
