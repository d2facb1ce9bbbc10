package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"proxypool/internal/model"
	"proxypool/internal/scraper"
	"proxypool/internal/storage"
)

const (
	DefaultValidateWorkers    = 20
	DefaultValidationBatchCap = 100
	DefaultRetentionDays      = 7
)

// Fetcher merges raw tokens from every configured source.
type Fetcher interface {
	FetchAll(ctx context.Context) []string
}

// Validator checks one candidate and persists the outcome.
type Validator interface {
	Validate(ctx context.Context, p model.Candidate) bool
}

type Config struct {
	// ValidateWorkers is the fixed size of the validation worker pool.
	ValidateWorkers int
	// ValidationBatchCap is how many parsed candidates per run get validated,
	// taken in fetch order.
	ValidationBatchCap int
	RetentionDays      int
}

// Orchestrator runs pool refreshes: fetch, persist new, validate, prune.
type Orchestrator struct {
	repo      storage.ProxyRepository
	fetcher   Fetcher
	validator Validator
	cfg       Config

	// Refreshes triggered concurrently (ticker, API, selector) share one run.
	group singleflight.Group

	// lifetime cancels in-flight runs on shutdown. Set by Bind or Run.
	mu       sync.Mutex
	lifetime context.Context
}

func New(repo storage.ProxyRepository, fetcher Fetcher, validator Validator, cfg Config) *Orchestrator {
	if cfg.ValidateWorkers <= 0 {
		cfg.ValidateWorkers = DefaultValidateWorkers
	}
	if cfg.ValidationBatchCap <= 0 {
		cfg.ValidationBatchCap = DefaultValidationBatchCap
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Orchestrator{
		repo:      repo,
		fetcher:   fetcher,
		validator: validator,
		cfg:       cfg,
		lifetime:  context.Background(),
	}
}

// Refresh performs one refresh run. Concurrent callers wait for and share
// the same report. The run keeps the caller's values but not its
// cancellation: it stops early only when the orchestrator shuts down.
func (o *Orchestrator) Refresh(ctx context.Context) *model.RefreshReport {
	v, _, _ := o.group.Do("refresh", func() (interface{}, error) {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(o.lifetimeCtx(), cancel)
		defer stop()

		return o.refresh(runCtx), nil
	})
	return v.(*model.RefreshReport)
}

// Bind ties in-flight refreshes to ctx: cancelling it stops the current
// run regardless of which caller started it.
func (o *Orchestrator) Bind(ctx context.Context) {
	o.mu.Lock()
	o.lifetime = ctx
	o.mu.Unlock()
}

func (o *Orchestrator) lifetimeCtx() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lifetime
}

func (o *Orchestrator) refresh(ctx context.Context) *model.RefreshReport {
	start := time.Now()
	report := &model.RefreshReport{}
	slog.Info("Starting proxy pool refresh")

	// 1. FETCH
	tokens := o.fetcher.FetchAll(ctx)
	report.Fetched = len(tokens)
	if len(tokens) == 0 {
		slog.Warn("No proxies fetched from any source")
		report.Message = "no proxies fetched"
		report.Stats = o.stats(ctx)
		report.ElapsedTime = time.Since(start).Seconds()
		return report
	}

	// 2. PERSIST-NEW
	candidates, failures := scraper.ParseAll(tokens)
	report.Parsed = len(candidates)
	report.ParseFailures = failures

	inserted, err := o.repo.BulkUpsertIfAbsent(ctx, candidates)
	if err != nil {
		slog.Error("Persisting candidates failed", "count", len(candidates), "error", err)
	}
	report.Inserted = inserted
	slog.Info("Persisted candidates", "parsed", len(candidates), "invalid", failures, "new", inserted)

	// 3. VALIDATE
	batch := o.validationBatch(candidates)
	report.Validated = len(batch)
	report.ValidProxies = o.validateAll(ctx, batch)
	slog.Info("Validation complete", "checked", len(batch), "working", report.ValidProxies)

	// 4. PRUNE
	removed, err := o.repo.PruneInactiveOlderThan(ctx, o.cfg.RetentionDays)
	if err != nil {
		slog.Error("Prune failed", "error", err)
	}
	report.Pruned = removed

	// 5. REPORT
	report.Success = true
	report.Stats = o.stats(ctx)
	report.ElapsedTime = time.Since(start).Seconds()

	slog.Info("Refresh complete",
		"elapsed", time.Since(start),
		"active", report.Stats.Active,
		"total", report.Stats.Total,
		"pruned", removed,
	)
	return report
}

// validationBatch returns the first ValidationBatchCap candidates with
// distinct (ip, port), so no record is checked twice in one run.
func (o *Orchestrator) validationBatch(candidates []model.Candidate) []model.Candidate {
	seen := make(map[string]struct{}, o.cfg.ValidationBatchCap)
	batch := make([]model.Candidate, 0, min(len(candidates), o.cfg.ValidationBatchCap))
	for _, c := range candidates {
		if len(batch) >= o.cfg.ValidationBatchCap {
			break
		}
		if _, dup := seen[c.Key()]; dup {
			continue
		}
		seen[c.Key()] = struct{}{}
		batch = append(batch, c)
	}
	return batch
}

// validateAll runs the batch through a fixed pool of workers:
// jobs -> workers -> results.
func (o *Orchestrator) validateAll(ctx context.Context, batch []model.Candidate) int {
	if len(batch) == 0 {
		return 0
	}

	jobChan := make(chan model.Candidate)
	resultChan := make(chan bool, len(batch))

	numWorkers := min(o.cfg.ValidateWorkers, len(batch))
	workerWg := &sync.WaitGroup{}
	workerWg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer workerWg.Done()
			o.runWorker(ctx, jobChan, resultChan)
		}()
	}

	// Producer
	go func() {
		defer close(jobChan)
		for _, c := range batch {
			select {
			case jobChan <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for workers to finish (when jobChan closes), then close resultChan
	go func() {
		workerWg.Wait()
		close(resultChan)
	}()

	valid := 0
	for ok := range resultChan {
		if ok {
			valid++
			if valid%10 == 0 {
				slog.Info("Validation progress", "working", valid)
			}
		}
	}
	return valid
}

// runWorker reads jobs, validates, sends the outcome to resultChan
func (o *Orchestrator) runWorker(ctx context.Context, jobChan <-chan model.Candidate, resultChan chan<- bool) {
	for c := range jobChan {
		if ctx.Err() != nil {
			return
		}
		resultChan <- o.validator.Validate(ctx, c)
	}
}

func (o *Orchestrator) stats(ctx context.Context) model.Stats {
	stats, err := o.repo.Stats(ctx)
	if err != nil {
		slog.Error("Stats failed", "error", err)
	}
	return stats
}

// Run refreshes the pool immediately and then on every interval tick until
// ctx is cancelled. Cancelling ctx also stops any refresh in flight,
// including ones started by other callers.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	o.Bind(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once immediately
	o.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Refresh loop stopped")
			return
		case <-ticker.C:
			o.Refresh(ctx)
		}
	}
}
