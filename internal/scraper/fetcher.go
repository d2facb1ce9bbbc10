package scraper

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultFetchConcurrency = 5
	DefaultFetchTimeout     = 10 * time.Second
)

// Fetcher pulls tokens from every source with bounded concurrency.
type Fetcher struct {
	sources     []Source
	concurrency int
	timeout     time.Duration
}

func NewFetcher(sources []Source, concurrency int, timeout time.Duration) *Fetcher {
	if concurrency <= 0 {
		concurrency = DefaultFetchConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		sources:     sources,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// Sources returns the configured sources.
func (f *Fetcher) Sources() []Source {
	return f.sources
}

// FetchAll fetches every source and merges the tokens in source order,
// dropping exact duplicates. A failing source is logged and contributes
// nothing; FetchAll itself never fails.
func (f *Fetcher) FetchAll(ctx context.Context) []string {
	results := make([][]string, len(f.sources))

	// SetLimit blocks Go until a slot frees, so at most f.concurrency fetches run.
	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for i, src := range f.sources {
		g.Go(func() error {
			results[i] = f.fetchOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var merged []string
	for _, tokens := range results {
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			merged = append(merged, tok)
		}
	}

	slog.Info("Fetch complete", "sources", len(f.sources), "unique", len(merged))
	return merged
}

func (f *Fetcher) fetchOne(ctx context.Context, src Source) []string {
	if ctx.Err() != nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	tokens, err := src.Fetch(fetchCtx)
	if err != nil {
		slog.Warn("Source unavailable", "source", src.Name(), "error", err)
		return nil
	}

	slog.Info("Scraped source", "source", src.Name(), "count", len(tokens), "took", time.Since(start))
	return tokens
}
