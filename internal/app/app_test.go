package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"proxypool/configs"
)

func testConfig(t *testing.T) *configs.Config {
	t.Helper()
	return &configs.Config{
		DatabasePath:       filepath.Join(t.TempDir(), "proxies.db"),
		GeoIPDBPath:        filepath.Join(t.TempDir(), "missing.mmdb"),
		ValidationURL:      "http://127.0.0.1:1/",
		FetchConcurrency:   2,
		ValidateWorkers:    2,
		ValidationBatchCap: 10,
		RetentionDays:      7,
		MinProxies:         1,
	}
}

func TestNew_SQLiteWithoutGeoIP(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	stats, err := a.Repo.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("fresh database has %d proxies", stats.Total)
	}
	if a.Orchestrator == nil || a.Selector == nil {
		t.Errorf("components not wired")
	}
}

func TestLoadSources(t *testing.T) {
	cfg := testConfig(t)
	srcs, err := LoadSources(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(srcs) != len(configs.DefaultSources) {
		t.Errorf("got %d default sources, want %d", len(srcs), len(configs.DefaultSources))
	}

	cfg.SourcesFile = filepath.Join(t.TempDir(), "sources.yaml")
	yaml := "sources:\n  - name: one\n    url: http://example.com/a.txt\n    protocol: socks5\n"
	if err := os.WriteFile(cfg.SourcesFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	srcs, err = LoadSources(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(srcs) != 1 || srcs[0].Name() != "one" {
		t.Errorf("unexpected sources from file: %v", srcs)
	}

	cfg.SourcesFile = filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := LoadSources(cfg); err == nil {
		t.Errorf("expected error for missing sources file")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
