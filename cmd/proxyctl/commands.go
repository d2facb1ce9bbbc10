package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"proxypool/internal/export"
	"proxypool/internal/model"
	"proxypool/internal/selector"
)

var errNoProxies = errors.New("no proxies available")

type proxySelector interface {
	GetProxies(ctx context.Context, q selector.Query) ([]*model.Proxy, error)
	GetRandomProxy(ctx context.Context, minSuccessRate float64) (*model.Proxy, error)
	GetBestProxies(ctx context.Context, limit int) ([]*model.Proxy, error)
}

type refresher interface {
	Refresh(ctx context.Context) *model.RefreshReport
}

type store interface {
	Stats(ctx context.Context) (model.Stats, error)
	PruneInactiveOlderThan(ctx context.Context, days int) (int64, error)
}

// cli runs one subcommand against the wired components.
type cli struct {
	selector  proxySelector
	refresher refresher
	store     store
	out       io.Writer
}

type command struct {
	name  string
	usage string
	run   func(c *cli, ctx context.Context, args []string) error
}

var commands = []command{
	{"fetch", "Fetch and validate proxies", (*cli).fetch},
	{"stats", "Show proxy statistics", (*cli).stats},
	{"list", "List active proxies", (*cli).list},
	{"random", "Get a random proxy", (*cli).random},
	{"best", "Get best performing proxies", (*cli).best},
	{"export", "Export proxies to file", (*cli).export},
	{"clean", "Remove inactive proxies", (*cli).clean},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: proxyctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func checkFormat(format string, allowed ...string) error {
	if !slices.Contains(allowed, format) {
		return fmt.Errorf("invalid format %q (choose from %s)", format, strings.Join(allowed, ", "))
	}
	return nil
}

func (c *cli) fetch(ctx context.Context, args []string) error {
	if err := newFlagSet("fetch").Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "Fetching proxies from all sources...")
	report := c.refresher.Refresh(ctx)
	if !report.Success {
		fmt.Fprintln(c.out, "✗ Failed to fetch proxies")
		return errors.New(report.Message)
	}

	fmt.Fprintf(c.out, "\n✓ Successfully fetched %d working proxies\n", report.ValidProxies)
	fmt.Fprintf(c.out, "  Time taken: %.2fs\n", report.ElapsedTime)
	fmt.Fprintln(c.out, "\nDatabase stats:")
	for _, kv := range statsRows(report.Stats) {
		fmt.Fprintf(c.out, "  %s: %v\n", kv.key, kv.value)
	}
	return nil
}

type statRow struct {
	key   string
	value any
}

func statsRows(s model.Stats) []statRow {
	return []statRow{
		{"total_proxies", s.Total},
		{"active_proxies", s.Active},
		{"inactive_proxies", s.Inactive},
		{"average_success_rate", s.AvgSuccessRate},
	}
}

// title turns "active_proxies" into "Active Proxies".
func title(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func (c *cli) stats(ctx context.Context, args []string) error {
	if err := newFlagSet("stats").Parse(args); err != nil {
		return err
	}
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return err
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(c.out, "\n%s\nPROXY POOL STATISTICS\n%s\n", rule, rule)
	for _, kv := range statsRows(stats) {
		label := title(kv.key)
		if pad := 40 - len(label); pad > 0 {
			label += strings.Repeat(".", pad)
		}
		fmt.Fprintf(c.out, "%s %v\n", label, kv.value)
	}
	fmt.Fprintf(c.out, "%s\n\n", rule)
	return nil
}

func (c *cli) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	limit := fs.Int("limit", 20, "Number of proxies to show")
	format := fs.String("format", export.FormatTable, "Output format: table, text, simple, url, json, csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, export.FormatTable, export.FormatText, export.FormatSimple, export.FormatURL, export.FormatJSON, export.FormatCSV); err != nil {
		return err
	}

	proxies, err := c.selector.GetProxies(ctx, selector.Query{Limit: *limit})
	if err != nil {
		return err
	}
	return export.Write(c.out, *format, proxies)
}

func (c *cli) random(ctx context.Context, args []string) error {
	fs := newFlagSet("random")
	format := fs.String("format", export.FormatSimple, "Output format: simple, url, json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, export.FormatSimple, export.FormatText, export.FormatURL, export.FormatJSON); err != nil {
		return err
	}

	proxy, err := c.selector.GetRandomProxy(ctx, selector.DefaultMinSuccessRate)
	if err != nil {
		return err
	}
	if proxy == nil {
		fmt.Fprintln(c.out, "✗ No proxies available")
		return errNoProxies
	}

	if *format == export.FormatJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(proxy)
	}
	return export.Write(c.out, *format, []*model.Proxy{proxy})
}

func (c *cli) best(ctx context.Context, args []string) error {
	fs := newFlagSet("best")
	limit := fs.Int("limit", 10, "Number of proxies")
	format := fs.String("format", export.FormatTable, "Output format: table, text, simple, url, json, csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, export.FormatTable, export.FormatText, export.FormatSimple, export.FormatURL, export.FormatJSON, export.FormatCSV); err != nil {
		return err
	}

	proxies, err := c.selector.GetBestProxies(ctx, *limit)
	if err != nil {
		return err
	}
	return export.Write(c.out, *format, proxies)
}

func (c *cli) export(ctx context.Context, args []string) error {
	fs := newFlagSet("export")
	limit := fs.Int("limit", 100, "Number of proxies")
	format := fs.String("format", export.FormatText, "Output format: text, url, json, csv")
	output := fs.String("output", "proxies.txt", "Output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, export.FormatText, export.FormatURL, export.FormatJSON, export.FormatCSV); err != nil {
		return err
	}

	proxies, err := c.selector.GetProxies(ctx, selector.Query{Limit: *limit})
	if err != nil {
		return err
	}

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("create %s: %w", *output, err)
	}
	if err := export.Write(f, *format, proxies); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", *output, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *output, err)
	}

	fmt.Fprintf(c.out, "✓ Exported %d proxies to %s\n", len(proxies), *output)
	return nil
}

func (c *cli) clean(ctx context.Context, args []string) error {
	fs := newFlagSet("clean")
	days := fs.Int("days", 7, "Days of inactivity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 0 {
		return fmt.Errorf("days must not be negative")
	}

	fmt.Fprintf(c.out, "Removing proxies inactive for %d days...\n", *days)
	removed, err := c.store.PruneInactiveOlderThan(ctx, *days)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Removed %d inactive proxies\n", removed)
	return nil
}
