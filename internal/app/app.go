package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"proxypool/configs"
	"proxypool/internal/checker"
	"proxypool/internal/engine"
	"proxypool/internal/geoip"
	"proxypool/internal/scraper"
	"proxypool/internal/scraper/sources"
	"proxypool/internal/selector"
	"proxypool/internal/storage"
)

// App holds the components shared by the daemon and the CLI.
type App struct {
	Config       *configs.Config
	Repo         storage.ProxyRepository
	Orchestrator *engine.Orchestrator
	Selector     *selector.Selector

	closers []func() error
}

// New wires storage, sources, validation and selection from cfg.
func New(ctx context.Context, cfg *configs.Config) (*App, error) {
	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Repo: repo, closers: []func() error{repo.Close}}

	srcs, err := LoadSources(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	fetcher := scraper.NewFetcher(srcs, cfg.FetchConcurrency, cfg.FetchTimeout)

	var locator checker.Locator
	geo, err := geoip.New(cfg.GeoIPDBPath)
	if err != nil {
		slog.Warn("GeoIP disabled (DB not found or invalid)", "error", err)
	} else {
		slog.Info("GeoIP enabled")
		locator = geo
		a.closers = append(a.closers, geo.Close)
	}

	chk := checker.NewChecker(cfg.ValidationURL, cfg.ValidationTimeout)
	validator := checker.NewValidator(chk, repo, locator)

	a.Orchestrator = engine.New(repo, fetcher, validator, engine.Config{
		ValidateWorkers:    cfg.ValidateWorkers,
		ValidationBatchCap: cfg.ValidationBatchCap,
		RetentionDays:      cfg.RetentionDays,
	})
	a.Orchestrator.Bind(ctx)
	a.Selector = selector.New(repo, a.Orchestrator, selector.Config{MinPoolSize: cfg.MinProxies})

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

// OpenRepository selects PostgreSQL when DatabaseURL is set and SQLite
// otherwise.
func OpenRepository(ctx context.Context, cfg *configs.Config) (storage.ProxyRepository, error) {
	if cfg.DatabaseURL != "" {
		repo, err := storage.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("Using PostgreSQL store")
		return repo, nil
	}

	repo, err := storage.NewSQLiteRepository(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	slog.Info("Using SQLite store", "path", cfg.DatabasePath)
	return repo, nil
}

// LoadSources reads the YAML catalogue when configured, falling back to the
// built-in list.
func LoadSources(cfg *configs.Config) ([]scraper.Source, error) {
	if cfg.SourcesFile == "" {
		return sources.FromURLs(configs.DefaultSources), nil
	}
	srcs, err := sources.LoadFile(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return srcs, nil
}

// ParseLevel maps LOG_LEVEL to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
