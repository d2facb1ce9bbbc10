package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"proxypool/configs"
	"proxypool/internal/app"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	cmd, ok := findCommand(os.Args[1])
	if !ok {
		usage(os.Stderr)
		os.Exit(1)
	}

	cfg, err := configs.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.Level(app.ParseLevel(cfg.LogLevel)),
	})
	slog.SetDefault(slog.New(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize", "err", err)
		os.Exit(1)
	}

	c := &cli{
		selector:  a.Selector,
		refresher: a.Orchestrator,
		store:     a.Repo,
		out:       os.Stdout,
	}
	err = cmd.run(c, ctx, os.Args[2:])
	a.Close()
	if err != nil {
		if !errors.Is(err, errNoProxies) {
			logger.Error("Command failed", "command", cmd.name, "err", err)
		}
		os.Exit(1)
	}
}
