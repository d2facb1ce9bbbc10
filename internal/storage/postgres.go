package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"proxypool/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS proxies (
	id              BIGSERIAL PRIMARY KEY,
	ip              TEXT NOT NULL,
	port            INTEGER NOT NULL,
	protocol        TEXT NOT NULL DEFAULT 'http',
	country         TEXT,
	anonymity       TEXT,
	latency_seconds DOUBLE PRECISION,
	success_count   BIGINT NOT NULL DEFAULT 0,
	fail_count      BIGINT NOT NULL DEFAULT 0,
	last_validated  TIMESTAMPTZ,
	last_selected   TIMESTAMPTZ,
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (ip, port)
);
CREATE INDEX IF NOT EXISTS idx_proxies_active ON proxies (active, success_count);
`

const insertProxySQL = `
	INSERT INTO proxies (ip, port, protocol, country, anonymity, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NOW())
	ON CONFLICT (ip, port) DO NOTHING
`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(dbURL string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Fix for Supabase Transaction Pooler (PgBouncer) "prepared statement already exists" error
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Migrate creates the proxies table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) UpsertIfAbsent(ctx context.Context, c model.Candidate) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertProxySQL, c.IP, c.Port, protocolOrDefault(c.Protocol), c.Country, c.Anonymity)
	if err != nil {
		return false, fmt.Errorf("insert %s failed: %w", c.Key(), err)
	}
	return tag.RowsAffected() > 0, nil
}

// BulkUpsertIfAbsent sends all inserts in one pgx.Batch. If the batch fails
// it falls back to row-by-row inserts so a bad row only loses itself.
func (r *PostgresRepository) BulkUpsertIfAbsent(ctx context.Context, cs []model.Candidate) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, c := range cs {
		batch.Queue(insertProxySQL, c.IP, c.Port, protocolOrDefault(c.Protocol), c.Country, c.Anonymity)
	}

	inserted, err := r.sendInsertBatch(ctx, batch, len(cs))
	if err == nil {
		return inserted, nil
	}
	slog.Warn("Bulk insert failed, retrying row by row", "count", len(cs), "error", err)

	inserted = 0
	for _, c := range cs {
		ok, err := r.UpsertIfAbsent(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
			slog.Warn("Skipping proxy", "proxy", c.Key(), "error", err)
			continue
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (r *PostgresRepository) sendInsertBatch(ctx context.Context, batch *pgx.Batch, n int) (int, error) {
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	// We must execute the batch results to ensure it actually happened and check errors
	inserted := 0
	for i := 0; i < n; i++ {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("failed to insert batch item %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PostgresRepository) QueryActive(ctx context.Context, minSuccessRate float64, limit int) ([]*model.Proxy, error) {
	query := `
		SELECT id, ip, port, COALESCE(protocol, 'http'), COALESCE(country, ''), COALESCE(anonymity, ''),
		       latency_seconds, success_count, fail_count, last_validated, last_selected, active, created_at
		FROM proxies
		WHERE active
		  AND (success_count + fail_count = 0
		       OR success_count::float8 / (success_count + fail_count) >= $1)
		ORDER BY success_count DESC, fail_count ASC, id ASC
	`
	args := []any{minSuccessRate}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var result []*model.Proxy
	for rows.Next() {
		p := &model.Proxy{}
		err := rows.Scan(
			&p.ID,
			&p.IP,
			&p.Port,
			&p.Protocol,
			&p.Country,
			&p.Anonymity,
			&p.Latency,
			&p.SuccessCount,
			&p.FailCount,
			&p.LastValidatedAt,
			&p.LastSelectedAt,
			&p.Active,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) RecordSuccess(ctx context.Context, ip string, port int, latency time.Duration) error {
	query := `
		UPDATE proxies
		SET success_count = success_count + 1, latency_seconds = $1, active = TRUE, last_validated = NOW()
		WHERE ip = $2 AND port = $3
	`
	if _, err := r.pool.Exec(ctx, query, latency.Seconds(), ip, port); err != nil {
		return fmt.Errorf("record success failed: %w", err)
	}
	return nil
}

// RecordFailure increments fail_count and applies the deactivation rule in
// the same statement, so concurrent outcomes never lose an increment.
func (r *PostgresRepository) RecordFailure(ctx context.Context, ip string, port int) error {
	query := `
		UPDATE proxies
		SET fail_count = fail_count + 1,
		    last_validated = NOW(),
		    active = CASE
		        WHEN fail_count + 1 > $1
		         AND (fail_count + 1)::float8 / (success_count + fail_count + 1) > $2 THEN FALSE
		        ELSE active
		    END
		WHERE ip = $3 AND port = $4
	`
	_, err := r.pool.Exec(ctx, query, model.DeactivateMinFailures, model.DeactivateFailRatio, ip, port)
	if err != nil {
		return fmt.Errorf("record failure failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetCountry(ctx context.Context, ip string, port int, country string) error {
	_, err := r.pool.Exec(ctx, `UPDATE proxies SET country = $1 WHERE ip = $2 AND port = $3`, country, ip, port)
	if err != nil {
		return fmt.Errorf("set country failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkSelected(ctx context.Context, proxies []*model.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range proxies {
		batch.Queue(`UPDATE proxies SET last_selected = NOW() WHERE ip = $1 AND port = $2`, p.IP, p.Port)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range proxies {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to mark batch item %d: %w", i, err)
		}
	}
	return nil
}

func (r *PostgresRepository) PruneInactiveOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM proxies WHERE NOT active AND last_validated < $1`, cutoff(days))
	if err != nil {
		return 0, fmt.Errorf("prune failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (model.Stats, error) {
	var total, active int64
	var avg *float64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE active),
		       AVG(success_count::float8 / NULLIF(success_count + fail_count, 0))
		FROM proxies
	`).Scan(&total, &active, &avg)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats failed: %w", err)
	}

	var rate float64
	if avg != nil {
		rate = *avg
	}
	return statsFrom(total, active, rate), nil
}

func protocolOrDefault(p string) string {
	if p == "" {
		return model.ProtocolHTTP
	}
	return p
}
