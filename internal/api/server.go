package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"proxypool/internal/export"
	"proxypool/internal/model"
	"proxypool/internal/selector"
)

const (
	maxLimit = 100
	version  = "1.0.0"
)

// ProxySelector is the read API the handlers serve from.
type ProxySelector interface {
	GetProxies(ctx context.Context, q selector.Query) ([]*model.Proxy, error)
	GetRandomProxy(ctx context.Context, minSuccessRate float64) (*model.Proxy, error)
	GetBestProxies(ctx context.Context, limit int) ([]*model.Proxy, error)
}

type Refresher interface {
	Refresh(ctx context.Context) *model.RefreshReport
}

type StatsSource interface {
	Stats(ctx context.Context) (model.Stats, error)
}

// Options configures a Server. A nil Limiter disables rate limiting and an
// empty APIKey disables authentication.
type Options struct {
	APIKey  string
	Limiter Limiter
}

type Server struct {
	selector  ProxySelector
	refresher Refresher
	stats     StatsSource
	apiKey    string
	limiter   Limiter
	now       func() time.Time
}

func NewServer(sel ProxySelector, refresher Refresher, stats StatsSource, opts Options) *Server {
	return &Server{
		selector:  sel,
		refresher: refresher,
		stats:     stats,
		apiKey:    opts.APIKey,
		limiter:   opts.Limiter,
		now:       time.Now,
	}
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	protected := func(h http.HandlerFunc) http.Handler {
		return s.requireAPIKey(h)
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return s.requireAPIKey(s.rateLimit(h))
	}

	router := http.NewServeMux()
	router.HandleFunc("GET /{$}", s.index)
	router.HandleFunc("GET /api/health", s.health)
	router.Handle("GET /api/proxies", limited(s.getProxies))
	router.Handle("GET /api/proxy/random", limited(s.getRandomProxy))
	router.Handle("GET /api/proxies/best", limited(s.getBestProxies))
	router.Handle("GET /api/stats", protected(s.getStats))
	router.Handle("POST /api/refresh", protected(s.refresh))
	router.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "Endpoint not found", http.StatusNotFound)
	})

	return withRequestID(withAccessLog(enableCORS(router)))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "Proxy Service API",
		"version":     version,
		"description": "Get working proxies for your projects",
		"endpoints": map[string]string{
			"get_proxies":  "/api/proxies",
			"random_proxy": "/api/proxy/random",
			"best_proxies": "/api/proxies/best",
			"health":       "/api/health",
			"stats":        "/api/stats",
			"refresh":      "/api/refresh",
		},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		slog.Error("Health stats failed", "error", err, "request_id", RequestID(r.Context()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"active_proxies": stats.Active,
		"total_proxies":  stats.Total,
		"timestamp":      float64(s.now().UnixMilli()) / 1000,
	})
}

func (s *Server) getProxies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), selector.DefaultLimit)
	if err != nil {
		writeError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	minRate, err := floatParam(q.Get("min_success_rate"), selector.DefaultMinSuccessRate)
	if err != nil {
		writeError(w, "Invalid min_success_rate", http.StatusBadRequest)
		return
	}
	format := formatParam(q.Get("format"))
	if !slices.Contains([]string{export.FormatJSON, export.FormatText, export.FormatCSV, export.FormatURL}, format) {
		writeError(w, "Invalid format: "+format, http.StatusBadRequest)
		return
	}

	proxies, err := s.selector.GetProxies(r.Context(), selector.Query{
		Limit:          clampLimit(limit),
		MinSuccessRate: minRate,
		Country:        q.Get("country"),
		Protocol:       q.Get("protocol"),
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeProxies(w, format, proxies)
}

func (s *Server) getRandomProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minRate, err := floatParam(q.Get("min_success_rate"), selector.DefaultMinSuccessRate)
	if err != nil {
		writeError(w, "Invalid min_success_rate", http.StatusBadRequest)
		return
	}
	format := formatParam(q.Get("format"))
	if !slices.Contains([]string{export.FormatJSON, export.FormatText, export.FormatURL}, format) {
		writeError(w, "Invalid format: "+format, http.StatusBadRequest)
		return
	}

	proxy, err := s.selector.GetRandomProxy(r.Context(), minRate)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if proxy == nil {
		writeError(w, "No proxies available", http.StatusNotFound)
		return
	}

	switch format {
	case export.FormatText:
		writeText(w, proxy.Address())
	case export.FormatURL:
		writeText(w, proxy.URL())
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"proxy":   export.NewView(proxy),
		})
	}
}

func (s *Server) getBestProxies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), selector.DefaultLimit)
	if err != nil {
		writeError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	format := formatParam(q.Get("format"))
	if !slices.Contains([]string{export.FormatJSON, export.FormatText, export.FormatSimple, export.FormatCSV, export.FormatURL}, format) {
		writeError(w, "Invalid format: "+format, http.StatusBadRequest)
		return
	}

	proxies, err := s.selector.GetBestProxies(r.Context(), clampLimit(limit))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeProxies(w, format, proxies)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

// refresh runs synchronously; the response is the run's report.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.refresher.Refresh(r.Context()))
}

func (s *Server) writeProxies(w http.ResponseWriter, format string, proxies []*model.Proxy) {
	if format == export.FormatJSON {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"count":   len(proxies),
			"proxies": export.Views(proxies),
		})
		return
	}
	body, err := export.String(format, proxies)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeText(w, body)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("Request failed", "path", r.URL.Path, "error", err, "request_id", RequestID(r.Context()))
	writeError(w, "Internal server error", http.StatusInternalServerError)
}

var errBadParam = errors.New("bad parameter")

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errBadParam
	}
	return n, nil
}

func floatParam(v string, def float64) (float64, error) {
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, errBadParam
	}
	return f, nil
}

func formatParam(v string) string {
	if v == "" {
		return export.FormatJSON
	}
	return strings.ToLower(v)
}

func clampLimit(n int) int {
	if n <= 0 {
		return selector.DefaultLimit
	}
	return min(n, maxLimit)
}
