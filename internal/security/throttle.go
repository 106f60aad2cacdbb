package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Throttle limits how often a key may perform an action within a window
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryThrottle is a fixed window limiter kept in process memory.
// Limits are per replica.
type MemoryThrottle struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	rate    int
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewMemoryThrottle creates a limiter allowing rate actions per window.
// Close stops its cleanup goroutine.
func NewMemoryThrottle(rate int, window time.Duration) *MemoryThrottle {
	if window <= 0 {
		window = time.Hour
	}
	t := &MemoryThrottle{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go t.cleanup()
	return t
}

// Allow consumes one token for key
func (t *MemoryThrottle) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[key]
	if !ok || now.Sub(b.lastRefill) >= t.window {
		b = &bucket{tokens: t.rate, lastRefill: now}
		t.buckets[key] = b
	}

	if b.tokens > 0 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Close stops the background cleanup
func (t *MemoryThrottle) Close() {
	close(t.stop)
}

// cleanup drops stale buckets so idle keys do not accumulate
func (t *MemoryThrottle) cleanup() {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			now := t.now()
			for key, b := range t.buckets {
				if now.Sub(b.lastRefill) > t.window*2 {
					delete(t.buckets, key)
				}
			}
			t.mu.Unlock()
		}
	}
}

// RedisThrottle is a fixed window limiter shared by every replica
type RedisThrottle struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
}

// NewRedisClient connects to addr, which may be a host:port or a redis:// URL
func NewRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

func NewRedisThrottle(client *redis.Client, rate int, window time.Duration) *RedisThrottle {
	if window <= 0 {
		window = time.Hour
	}
	return &RedisThrottle{client: client, rate: rate, window: window, prefix: "throttle:"}
}

// Allow increments the counter for the current window of key
func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	slot := time.Now().UnixNano() / int64(t.window)
	redisKey := fmt.Sprintf("%s%s:%d", t.prefix, key, slot)

	count, err := t.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment throttle counter: %w", err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, redisKey, t.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set throttle expiry: %w", err)
		}
	}
	return count <= int64(t.rate), nil
}

// GetClientIP extracts the client IP from the request
func GetClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (when behind proxy)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
