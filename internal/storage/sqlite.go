package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"proxypool/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// proxyRow is the gorm mapping of the proxies table.
type proxyRow struct {
	ID             int64   `gorm:"primaryKey"`
	IP             string  `gorm:"not null;uniqueIndex:idx_proxies_ip_port"`
	Port           int     `gorm:"not null;uniqueIndex:idx_proxies_ip_port"`
	Protocol       string  `gorm:"not null;default:http"`
	Country        *string
	Anonymity      *string
	LatencySeconds *float64
	SuccessCount   int64 `gorm:"not null;default:0;index:idx_proxies_active,priority:2"`
	FailCount      int64 `gorm:"not null;default:0"`
	LastValidated  *time.Time
	LastSelected   *time.Time
	Active         bool      `gorm:"not null;default:true;index:idx_proxies_active,priority:1"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (proxyRow) TableName() string {
	return "proxies"
}

func (r *proxyRow) toModel() *model.Proxy {
	p := &model.Proxy{
		ID:              r.ID,
		IP:              r.IP,
		Port:            r.Port,
		Protocol:        r.Protocol,
		Latency:         r.LatencySeconds,
		SuccessCount:    r.SuccessCount,
		FailCount:       r.FailCount,
		LastValidatedAt: r.LastValidated,
		LastSelectedAt:  r.LastSelected,
		Active:          r.Active,
		CreatedAt:       r.CreatedAt,
	}
	if r.Country != nil {
		p.Country = *r.Country
	}
	if r.Anonymity != nil {
		p.Anonymity = *r.Anonymity
	}
	return p
}

func rowFromCandidate(c model.Candidate, now time.Time) *proxyRow {
	return &proxyRow{
		IP:        c.IP,
		Port:      c.Port,
		Protocol:  protocolOrDefault(c.Protocol),
		Country:   optional(c.Country),
		Anonymity: optional(c.Anonymity),
		Active:    true,
		CreatedAt: now,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SQLiteRepository stores proxies in a local SQLite file through gorm.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository opens (or creates) the database at dsn and migrates it.
// dsn may be a file path or a "file:...?mode=memory" URI.
func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows one writer; a single connection serializes validation
	// outcomes instead of surfacing "database is locked".
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := db.AutoMigrate(&proxyRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SQLiteRepository) UpsertIfAbsent(ctx context.Context, c model.Candidate) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rowFromCandidate(c, time.Now().UTC()))
	if res.Error != nil {
		return false, fmt.Errorf("insert %s failed: %w", c.Key(), res.Error)
	}
	return res.RowsAffected > 0, nil
}

// BulkUpsertIfAbsent inserts inside one transaction; rows that fail are
// logged and skipped.
func (r *SQLiteRepository) BulkUpsertIfAbsent(ctx context.Context, cs []model.Candidate) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}

	inserted := 0
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range cs {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rowFromCandidate(c, now))
			if res.Error != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("Skipping proxy", "proxy", c.Key(), "error", res.Error)
				continue
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk insert failed: %w", err)
	}
	return inserted, nil
}

func (r *SQLiteRepository) QueryActive(ctx context.Context, minSuccessRate float64, limit int) ([]*model.Proxy, error) {
	q := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("(success_count + fail_count = 0 OR CAST(success_count AS REAL) / (success_count + fail_count) >= ?)", minSuccessRate).
		Order("success_count DESC, fail_count ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []proxyRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	result := make([]*model.Proxy, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toModel())
	}
	return result, nil
}

func (r *SQLiteRepository) RecordSuccess(ctx context.Context, ip string, port int, latency time.Duration) error {
	err := r.db.WithContext(ctx).Model(&proxyRow{}).
		Where("ip = ? AND port = ?", ip, port).
		Updates(map[string]any{
			"success_count":   gorm.Expr("success_count + 1"),
			"latency_seconds": latency.Seconds(),
			"active":          true,
			"last_validated":  time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("record success failed: %w", err)
	}
	return nil
}

// RecordFailure increments fail_count and applies the deactivation rule in
// one statement. SQLite evaluates every SET expression against the old row.
func (r *SQLiteRepository) RecordFailure(ctx context.Context, ip string, port int) error {
	err := r.db.WithContext(ctx).Model(&proxyRow{}).
		Where("ip = ? AND port = ?", ip, port).
		Updates(map[string]any{
			"fail_count":     gorm.Expr("fail_count + 1"),
			"last_validated": time.Now().UTC(),
			"active": gorm.Expr(
				"CASE WHEN fail_count + 1 > ? AND CAST(fail_count + 1 AS REAL) / (success_count + fail_count + 1) > ? THEN ? ELSE active END",
				model.DeactivateMinFailures, model.DeactivateFailRatio, false,
			),
		}).Error
	if err != nil {
		return fmt.Errorf("record failure failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetCountry(ctx context.Context, ip string, port int, country string) error {
	err := r.db.WithContext(ctx).Model(&proxyRow{}).
		Where("ip = ? AND port = ?", ip, port).
		Update("country", country).Error
	if err != nil {
		return fmt.Errorf("set country failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSelected(ctx context.Context, proxies []*model.Proxy) error {
	if len(proxies) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(proxies))
	for _, p := range proxies {
		ids = append(ids, p.ID)
	}

	err := r.db.WithContext(ctx).Model(&proxyRow{}).
		Where("id IN ?", ids).
		Update("last_selected", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("mark selected failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PruneInactiveOlderThan(ctx context.Context, days int) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("active = ? AND last_validated < ?", false, cutoff(days)).
		Delete(&proxyRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (model.Stats, error) {
	var total, active int64
	if err := r.db.WithContext(ctx).Model(&proxyRow{}).Count(&total).Error; err != nil {
		return model.Stats{}, fmt.Errorf("count failed: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&proxyRow{}).Where("active = ?", true).Count(&active).Error; err != nil {
		return model.Stats{}, fmt.Errorf("count active failed: %w", err)
	}

	var avg struct {
		Rate *float64
	}
	err := r.db.WithContext(ctx).Model(&proxyRow{}).
		Select("AVG(CAST(success_count AS REAL) / (success_count + fail_count)) AS rate").
		Where("success_count + fail_count > 0").
		Scan(&avg).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Stats{}, fmt.Errorf("average rate failed: %w", err)
	}

	var rate float64
	if avg.Rate != nil {
		rate = *avg.Rate
	}
	return statsFrom(total, active, rate), nil
}

