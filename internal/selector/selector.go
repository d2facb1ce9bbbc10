package selector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"proxypool/internal/model"
)

const (
	DefaultMinPoolSize    = 10
	DefaultLimit          = 10
	DefaultMinSuccessRate = 0.5
	BestMinSuccessRate    = 0.7
	randomPoolSize        = 50
)

// Store is the read side of the proxy store the selector needs.
type Store interface {
	QueryActive(ctx context.Context, minSuccessRate float64, limit int) ([]*model.Proxy, error)
	MarkSelected(ctx context.Context, proxies []*model.Proxy) error
}

// Refresher refills the pool. *engine.Orchestrator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) *model.RefreshReport
}

type Config struct {
	// MinPoolSize is the number of qualifying proxies below which a query
	// triggers one synchronous refresh.
	MinPoolSize int
}

// Query narrows a selection. Country and Protocol match case-insensitively
// and are ignored when empty.
type Query struct {
	Limit          int
	MinSuccessRate float64
	Country        string
	Protocol       string
}

type Selector struct {
	store     Store
	refresher Refresher
	cfg       Config
}

// New builds a selector. refresher may be nil, in which case an undersized
// pool is served as is.
func New(store Store, refresher Refresher, cfg Config) *Selector {
	if cfg.MinPoolSize <= 0 {
		cfg.MinPoolSize = DefaultMinPoolSize
	}
	return &Selector{store: store, refresher: refresher, cfg: cfg}
}

// GetProxies returns up to q.Limit active proxies, best first, and stamps
// them as selected.
func (s *Selector) GetProxies(ctx context.Context, q Query) ([]*model.Proxy, error) {
	proxies, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	s.markSelected(ctx, proxies)
	return proxies, nil
}

func (s *Selector) query(ctx context.Context, q Query) ([]*model.Proxy, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	// Enough rows to judge the pool size; only the top 2*limit are
	// candidates for the filters below.
	window := 2 * q.Limit
	want := max(window, s.cfg.MinPoolSize)

	proxies, err := s.store.QueryActive(ctx, q.MinSuccessRate, want)
	if err != nil {
		return nil, fmt.Errorf("query proxies: %w", err)
	}

	if len(proxies) < s.cfg.MinPoolSize && s.refresher != nil {
		slog.Info("Pool below minimum, refreshing", "qualifying", len(proxies), "min", s.cfg.MinPoolSize)
		s.refresher.Refresh(ctx)
		proxies, err = s.store.QueryActive(ctx, q.MinSuccessRate, want)
		if err != nil {
			return nil, fmt.Errorf("query proxies after refresh: %w", err)
		}
	}

	if len(proxies) > window {
		proxies = proxies[:window]
	}
	proxies = filter(proxies, q.Country, q.Protocol)
	if len(proxies) > q.Limit {
		proxies = proxies[:q.Limit]
	}
	return proxies, nil
}

func (s *Selector) markSelected(ctx context.Context, proxies []*model.Proxy) {
	if len(proxies) == 0 {
		return
	}
	if err := s.store.MarkSelected(ctx, proxies); err != nil {
		slog.Warn("Mark selected failed", "count", len(proxies), "error", err)
	}
}

// GetRandomProxy picks uniformly among the top proxies. It returns nil and
// no error when nothing qualifies.
func (s *Selector) GetRandomProxy(ctx context.Context, minSuccessRate float64) (*model.Proxy, error) {
	proxies, err := s.query(ctx, Query{Limit: randomPoolSize, MinSuccessRate: minSuccessRate})
	if err != nil {
		return nil, err
	}
	if len(proxies) == 0 {
		return nil, nil
	}
	picked := proxies[rand.IntN(len(proxies))]
	s.markSelected(ctx, []*model.Proxy{picked})
	return picked, nil
}

// GetBestProxies returns proxies with a success rate of at least 70%.
func (s *Selector) GetBestProxies(ctx context.Context, limit int) ([]*model.Proxy, error) {
	return s.GetProxies(ctx, Query{Limit: limit, MinSuccessRate: BestMinSuccessRate})
}

func filter(proxies []*model.Proxy, country, protocol string) []*model.Proxy {
	if country == "" && protocol == "" {
		return proxies
	}
	out := proxies[:0:0]
	for _, p := range proxies {
		if country != "" && !strings.EqualFold(p.Country, country) {
			continue
		}
		if protocol != "" && !strings.EqualFold(p.Protocol, protocol) {
			continue
		}
		out = append(out, p)
	}
	return out
}
