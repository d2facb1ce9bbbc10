package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"proxypool/internal/checker"
	"proxypool/internal/model"
	"proxypool/internal/storage"
)

type staticFetcher []string

func (f staticFetcher) FetchAll(context.Context) []string { return f }

type alwaysFail struct{}

func (alwaysFail) Check(context.Context, model.Candidate) (*checker.CheckResult, error) {
	return &checker.CheckResult{Alive: false}, nil
}

type aliveOn map[string]bool

func (a aliveOn) Check(_ context.Context, p model.Candidate) (*checker.CheckResult, error) {
	return &checker.CheckResult{Alive: a[p.Key()], Latency: 100 * time.Millisecond}, nil
}

// countingValidator tracks concurrency and the set of validated keys.
type countingValidator struct {
	mu      sync.Mutex
	seen    map[string]int
	running atomic.Int32
	peak    atomic.Int32
}

func (v *countingValidator) Validate(_ context.Context, p model.Candidate) bool {
	n := v.running.Add(1)
	defer v.running.Add(-1)
	for {
		cur := v.peak.Load()
		if n <= cur || v.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	v.mu.Lock()
	v.seen[p.Key()]++
	v.mu.Unlock()
	return false
}

func setupRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRefresh_EndToEnd_AllValidationsFail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	o := New(repo,
		staticFetcher{"1.2.3.4:8080", "bad-token", "5.6.7.8:3128"},
		checker.NewValidator(alwaysFail{}, repo, nil),
		Config{},
	)

	report := o.Refresh(ctx)

	if !report.Success {
		t.Fatalf("expected success, got %+v", report)
	}
	if report.ValidProxies != 0 {
		t.Errorf("valid_proxies = %d, want 0", report.ValidProxies)
	}
	if report.Inserted != 2 || report.ParseFailures != 1 {
		t.Errorf("inserted=%d parse_failures=%d, want 2 and 1", report.Inserted, report.ParseFailures)
	}
	if report.Stats.Total != 2 || report.Stats.Active != 2 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}

	proxies, err := repo.QueryActive(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(proxies) != 2 {
		t.Fatalf("store holds %d active proxies, want 2", len(proxies))
	}
	for _, p := range proxies {
		if p.FailCount != 1 || p.SuccessCount != 0 {
			t.Errorf("%s: fail=%d success=%d, want 1 and 0", p.Address(), p.FailCount, p.SuccessCount)
		}
		if !p.Active {
			t.Errorf("%s should still be active", p.Address())
		}
	}
}

func TestRefresh_EmptyFetchFails(t *testing.T) {
	repo := setupRepo(t)
	validator := &countingValidator{seen: map[string]int{}}

	report := New(repo, staticFetcher(nil), validator, Config{}).Refresh(context.Background())

	if report.Success {
		t.Errorf("expected failure when no source returned anything")
	}
	if report.Message == "" {
		t.Errorf("expected a failure message")
	}
	if len(validator.seen) != 0 {
		t.Errorf("nothing should be validated on an empty fetch")
	}
	if report.Stats.Total != 0 {
		t.Errorf("no mutation expected, got stats %+v", report.Stats)
	}
}

func TestRefresh_CountsWorkingProxies(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	alive := aliveOn{"1.1.1.1:80": true, "3.3.3.3:80": true}
	o := New(repo,
		staticFetcher{"1.1.1.1:80", "2.2.2.2:80", "3.3.3.3:80"},
		checker.NewValidator(alive, repo, nil),
		Config{ValidateWorkers: 2},
	)

	report := o.Refresh(ctx)
	if report.ValidProxies != 2 {
		t.Errorf("valid_proxies = %d, want 2", report.ValidProxies)
	}

	best, _ := repo.QueryActive(ctx, 0.7, 0)
	if len(best) != 2 {
		t.Errorf("expected 2 proxies at rate >= 0.7, got %d", len(best))
	}
	for _, p := range best {
		if p.LatencySeconds() != 0.1 {
			t.Errorf("%s latency = %v, want 0.1", p.Address(), p.LatencySeconds())
		}
	}

	// A second run adds nothing new and leaves counters monotonic.
	report = o.Refresh(ctx)
	if report.Inserted != 0 {
		t.Errorf("second run inserted %d, want 0", report.Inserted)
	}
	all, _ := repo.QueryActive(ctx, 0, 0)
	for _, p := range all {
		if p.SuccessCount+p.FailCount != 2 {
			t.Errorf("%s has %d outcomes after two runs, want 2", p.Address(), p.SuccessCount+p.FailCount)
		}
	}
}

func TestRefresh_ValidationCapAndWorkerBound(t *testing.T) {
	repo := setupRepo(t)

	var tokens []string
	for i := 0; i < 250; i++ {
		tokens = append(tokens, fmt.Sprintf("10.0.%d.%d:8080", i/250, i))
	}
	// Same record twice in different shapes must be checked once.
	tokens = append([]string{"http://10.0.0.0:8080"}, tokens...)

	validator := &countingValidator{seen: map[string]int{}}
	report := New(repo, staticFetcher(tokens), validator, Config{
		ValidateWorkers:    4,
		ValidationBatchCap: 50,
	}).Refresh(context.Background())

	if report.Validated != 50 || len(validator.seen) != 50 {
		t.Errorf("validated %d (%d distinct), want 50", report.Validated, len(validator.seen))
	}
	for k, n := range validator.seen {
		if n != 1 {
			t.Errorf("%s validated %d times", k, n)
		}
	}
	if _, ok := validator.seen["10.0.0.60:8080"]; ok {
		t.Errorf("candidate beyond the cap was validated")
	}
	if p := validator.peak.Load(); p > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", p)
	}
	if report.Inserted != 250 {
		t.Errorf("inserted = %d, want 250", report.Inserted)
	}
}

func TestRefresh_ConcurrentCallsShareOneRun(t *testing.T) {
	repo := setupRepo(t)

	var fetches atomic.Int32
	fetcher := fetchFunc(func(context.Context) []string {
		fetches.Add(1)
		time.Sleep(50 * time.Millisecond)
		return []string{"1.1.1.1:80"}
	})
	o := New(repo, fetcher, &countingValidator{seen: map[string]int{}}, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Refresh(context.Background())
		}()
	}
	wg.Wait()

	if n := fetches.Load(); n >= 5 {
		t.Errorf("expected concurrent refreshes to collapse, got %d fetches", n)
	}
}

type fetchFunc func(context.Context) []string

func (f fetchFunc) FetchAll(ctx context.Context) []string { return f(ctx) }

func TestRefresh_CallerCancelDoesNotAbortSharedRun(t *testing.T) {
	repo := setupRepo(t)

	started := make(chan struct{})
	var cancelled atomic.Bool
	fetcher := fetchFunc(func(ctx context.Context) []string {
		close(started)
		select {
		case <-time.After(200 * time.Millisecond):
			return []string{"1.1.1.1:80"}
		case <-ctx.Done():
			cancelled.Store(true)
			return nil
		}
	})
	o := New(repo, fetcher, &countingValidator{seen: map[string]int{}}, Config{})

	ctxA, cancelA := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelA()

	var reportA, reportB *model.RefreshReport
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reportA = o.Refresh(ctxA)
	}()
	<-started
	go func() {
		defer wg.Done()
		reportB = o.Refresh(context.Background())
	}()
	wg.Wait()

	if cancelled.Load() {
		t.Errorf("fetch saw the first caller's cancellation")
	}
	if !reportA.Success || !reportB.Success {
		t.Errorf("shared run failed: A=%+v B=%+v", reportA, reportB)
	}
}

func TestRefresh_BoundContextStopsRun(t *testing.T) {
	repo := setupRepo(t)

	started := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context) []string {
		close(started)
		select {
		case <-time.After(5 * time.Second):
			return []string{"1.1.1.1:80"}
		case <-ctx.Done():
			return nil
		}
	})
	o := New(repo, fetcher, &countingValidator{seen: map[string]int{}}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Bind(ctx)

	done := make(chan *model.RefreshReport, 1)
	go func() { done <- o.Refresh(context.Background()) }()
	<-started
	cancel()

	select {
	case report := <-done:
		if report.Success {
			t.Errorf("run should stop on shutdown, got %+v", report)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not stop after the bound context was cancelled")
	}
}
