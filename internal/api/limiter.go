package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts requests per key in fixed one-minute windows.
type Limiter interface {
	// Allow counts one request for key. When the window's budget is spent it
	// returns false and the time left until the window resets.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
	Limit() int
}

// window returns the current minute index and the time left in it.
func window(now time.Time) (int64, time.Duration) {
	minute := now.Unix() / 60
	reset := time.Unix((minute+1)*60, 0)
	return minute, reset.Sub(now)
}

// MemoryLimiter keeps counters in process. Counters of past windows are
// dropped when a new window starts.
type MemoryLimiter struct {
	limit int
	now   func() time.Time

	mu     sync.Mutex
	minute int64
	counts map[string]int
}

func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  perMinute,
		now:    time.Now,
		counts: make(map[string]int),
	}
}

func (m *MemoryLimiter) Limit() int { return m.limit }

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	minute, left := window(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if minute != m.minute {
		m.minute = minute
		clear(m.counts)
	}
	m.counts[key]++
	if m.counts[key] > m.limit {
		return false, left, nil
	}
	return true, 0, nil
}

// RedisLimiter shares counters through Redis (INCR + EXPIRE), so restarts
// keep the current window.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  perMinute,
		prefix: "proxypool:ratelimit",
		now:    time.Now,
	}
}

func (r *RedisLimiter) Limit() int { return r.limit }

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	minute, left := window(r.now())
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, key, minute)

	n, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, redisKey, time.Minute).Err(); err != nil {
			return true, 0, fmt.Errorf("expire %s: %w", redisKey, err)
		}
	}
	if n > int64(r.limit) {
		return false, left, nil
	}
	return true, 0, nil
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL %q: %w", url, err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
