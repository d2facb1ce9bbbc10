package storage

import (
	"context"
	"time"

	"proxypool/internal/model"
)

// ProxyRepository defines the methods for interacting with the proxy storage.
// Counter updates must be atomic per record (single UPDATE ... x = x + 1).
type ProxyRepository interface {
	// UpsertIfAbsent inserts the candidate unless (ip, port) already exists.
	// An existing record is left untouched.
	UpsertIfAbsent(ctx context.Context, c model.Candidate) (bool, error)

	// BulkUpsertIfAbsent inserts every absent candidate and returns how many
	// were genuinely new. A failing row is skipped, not fatal.
	BulkUpsertIfAbsent(ctx context.Context, cs []model.Candidate) (int, error)

	// QueryActive returns active proxies whose success rate is at least
	// minSuccessRate, ordered by success_count desc, fail_count asc.
	// Untested proxies always qualify. limit <= 0 means no limit.
	QueryActive(ctx context.Context, minSuccessRate float64, limit int) ([]*model.Proxy, error)

	// RecordSuccess counts a passed validation and reactivates the proxy.
	RecordSuccess(ctx context.Context, ip string, port int, latency time.Duration) error

	// RecordFailure counts a failed validation and deactivates the proxy
	// when model.ShouldDeactivate holds for its new counters.
	RecordFailure(ctx context.Context, ip string, port int) error

	// SetCountry tags a proxy with an ISO country code.
	SetCountry(ctx context.Context, ip string, port int, country string) error

	// MarkSelected stamps last_selected on proxies handed out to callers.
	MarkSelected(ctx context.Context, proxies []*model.Proxy) error

	// PruneInactiveOlderThan deletes inactive proxies whose last validation is
	// older than the given number of days.
	PruneInactiveOlderThan(ctx context.Context, days int) (int64, error)

	// Stats returns aggregate pool statistics.
	Stats(ctx context.Context) (model.Stats, error)

	Close() error
}

// cutoff returns the prune threshold for a retention window in days.
func cutoff(days int) time.Time {
	return time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

func statsFrom(total, active int64, avgRate float64) model.Stats {
	return model.Stats{
		Total:          total,
		Active:         active,
		Inactive:       total - active,
		AvgSuccessRate: model.Round(avgRate*100, 2),
	}
}
