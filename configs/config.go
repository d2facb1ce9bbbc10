package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSources are public plain-text lists, one proxy per line.
var DefaultSources = []string{
	"https://api.proxyscrape.com/v2/?request=get&protocol=http&timeout=10000&country=all&ssl=all&anonymity=all",
	"https://www.proxy-list.download/api/v1/get?type=http",
	"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
	"https://raw.githubusercontent.com/clarketm/proxy-list/master/proxy-list-raw.txt",
	"https://raw.githubusercontent.com/ShiftyTR/Proxy-List/master/http.txt",
	"https://raw.githubusercontent.com/jetkai/proxy-list/main/online-proxies/txt/proxies-http.txt",
	"https://raw.githubusercontent.com/mmpx12/proxy-list/master/http.txt",
	"https://raw.githubusercontent.com/roosterkid/openproxylist/main/HTTPS_RAW.txt",
}

type Config struct {
	// Storage. DatabaseURL selects PostgreSQL; otherwise SQLite at DatabasePath.
	DatabaseURL  string
	DatabasePath string

	SourcesFile string
	GeoIPDBPath string

	// Pool lifecycle
	ValidationURL      string
	ValidationTimeout  time.Duration
	FetchTimeout       time.Duration
	FetchConcurrency   int
	ValidateWorkers    int
	ValidationBatchCap int
	RetentionDays      int
	MinProxies         int
	RefreshInterval    time.Duration

	// API
	APIHost            string
	APIPort            int
	APIKey             string
	RateLimitEnabled   bool
	RateLimitPerMinute int
	RedisURL           string

	LogLevel string
}

func Load() (*Config, error) {
	// Try loading .env, but don't fail if it doesn't exist (e.g. production)
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: l.str("DATABASE_PATH", "proxies.db"),
		SourcesFile:  os.Getenv("SOURCES_FILE"),
		GeoIPDBPath:  l.str("GEOIP_DB_PATH", "data/GeoLite2-City.mmdb"),

		ValidationURL:      l.str("VALIDATION_URL", "https://httpbin.org/ip"),
		ValidationTimeout:  l.seconds("VALIDATION_TIMEOUT", 10),
		FetchTimeout:       l.seconds("FETCH_TIMEOUT", 10),
		FetchConcurrency:   l.int("FETCH_CONCURRENCY", 5),
		ValidateWorkers:    l.int("VALIDATE_WORKERS", 20),
		ValidationBatchCap: l.int("VALIDATION_BATCH_CAP", 100),
		RetentionDays:      l.int("RETENTION_DAYS", 7),
		MinProxies:         l.int("MIN_PROXIES", 10),
		RefreshInterval:    l.seconds("REFRESH_INTERVAL", 3600),

		APIHost:            l.str("API_HOST", "0.0.0.0"),
		APIPort:            l.int("API_PORT", 5000),
		APIKey:             os.Getenv("API_KEY"),
		RateLimitEnabled:   l.bool("RATE_LIMIT_ENABLED", false),
		RateLimitPerMinute: l.int("RATE_LIMIT_PER_MINUTE", 60),
		RedisURL:           os.Getenv("REDIS_URL"),

		LogLevel: l.str("LOG_LEVEL", "info"),
	}
	if l.err != nil {
		return nil, l.err
	}

	if cfg.FetchConcurrency <= 0 || cfg.ValidateWorkers <= 0 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY and VALIDATE_WORKERS must be positive")
	}
	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive")
	}

	return cfg, nil
}

// APIAddr returns host:port for the HTTP listener.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (l *loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if l.err == nil {
			l.err = fmt.Errorf("%s: invalid integer %q", key, v)
		}
		return def
	}
	return n
}

func (l *loader) seconds(key string, def int) time.Duration {
	return time.Duration(l.int(key, def)) * time.Second
}

func (l *loader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
