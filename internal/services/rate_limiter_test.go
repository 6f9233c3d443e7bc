package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/redis"
)

type fakeRateRedis struct {
	data   map[string]int64
	expire map[string]time.Time
}

func newFakeRateRedis() *fakeRateRedis {
	return &fakeRateRedis{
		data:   make(map[string]int64),
		expire: make(map[string]time.Time),
	}
}

func (f *fakeRateRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.cleanup()
	val := f.data[key] + 1
	f.data[key] = val
	return val, nil
}

func (f *fakeRateRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.expire[key] = time.Now().Add(ttl)
	return nil
}

func (f *fakeRateRedis) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.cleanup()
	if exp, ok := f.expire[key]; ok {
		return time.Until(exp), nil
	}
	return 0, nil
}

func (f *fakeRateRedis) GetInt(ctx context.Context, key string) (int64, error) {
	f.cleanup()
	val, ok := f.data[key]
	if !ok {
		return 0, redis.ErrCacheMiss
	}
	return val, nil
}

func (f *fakeRateRedis) cleanup() {
	now := time.Now()
	for k, exp := range f.expire {
		if now.After(exp) {
			delete(f.expire, k)
			delete(f.data, k)
		}
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter := &RateLimiter{
		redis:   newFakeRateRedis(),
		log:     newTestLogger(),
		enabled: true,
		limit:   2,
		window:  time.Second,
		prefix:  "test",
	}

	ctx := context.Background()
	allowed, remaining, _, err := limiter.Allow(ctx, "play|ip1")
	if err != nil || !allowed || remaining != 1 {
		t.Fatalf("first request should be allowed, remaining=1, got allowed=%v remaining=%d err=%v", allowed, remaining, err)
	}

	allowed, remaining, _, err = limiter.Allow(ctx, "play|ip1")
	if err != nil || !allowed || remaining != 0 {
		t.Fatalf("second request should be allowed, remaining=0, got allowed=%v remaining=%d err=%v", allowed, remaining, err)
	}

	allowed, remaining, _, err = limiter.Allow(ctx, "play|ip1")
	if err != nil || allowed || remaining != 0 {
		t.Fatalf("third request should be blocked, got allowed=%v remaining=%d err=%v", allowed, remaining, err)
	}

	allowed, _, _, err = limiter.Allow(ctx, "redeem|ip1")
	if err != nil || !allowed {
		t.Fatalf("other scope must have its own window, got allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimiter_NewDisabled(t *testing.T) {
	if limiter := NewRateLimiter(nil, nil, nil); limiter.Enabled() {
		t.Fatalf("expected limiter disabled without cfg/redis")
	}
	cfg := &config.RateLimitConfig{Enabled: false}
	if limiter := NewRateLimiter(nil, nil, cfg); limiter.Enabled() {
		t.Fatalf("expected limiter disabled when cfg disabled")
	}
}

func TestRateLimiter_DisabledAllowsEverything(t *testing.T) {
	limiter := NewRateLimiter(nil, nil, nil)
	for i := 0; i < 10; i++ {
		allowed, _, _, err := limiter.Allow(context.Background(), "ip")
		if err != nil || !allowed {
			t.Fatalf("disabled limiter must allow, got allowed=%v err=%v", allowed, err)
		}
	}
}

type stubRateRedis struct{}

func (s *stubRateRedis) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }
func (s *stubRateRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}
func (s *stubRateRedis) TTL(ctx context.Context, key string) (time.Duration, error) {
	return time.Second, nil
}
func (s *stubRateRedis) GetInt(ctx context.Context, key string) (int64, error) { return 0, nil }

func TestRateLimiter_NewEnabled(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: true, Requests: 10, WindowSeconds: 60}
	limiter := NewRateLimiter(&redis.Client{}, nil, cfg)
	limiter.redis = &stubRateRedis{}
	if !limiter.Enabled() || limiter.Limit() != 10 {
		t.Fatalf("expected enabled limiter with limit 10")
	}
	if limiter.prefix != redis.KeyPrefixRateLimit {
		t.Fatalf("expected default prefix %q, got %q", redis.KeyPrefixRateLimit, limiter.prefix)
	}
}

func TestRateLimiter_UsageAndLimit(t *testing.T) {
	limiter := &RateLimiter{redis: newFakeRateRedis(), log: newTestLogger(), enabled: true, limit: 3, window: time.Minute, prefix: "rl"}
	_, _, _, _ = limiter.Allow(context.Background(), "ip1")
	_, _, _, _ = limiter.Allow(context.Background(), "ip1")

	used, remaining, resetAt, err := limiter.Usage(context.Background(), "ip1")
	if err != nil || used != 2 || remaining != 1 || resetAt == nil {
		t.Fatalf("unexpected usage: used=%d remaining=%d reset=%v err=%v", used, remaining, resetAt, err)
	}

	used, remaining, resetAt, err = limiter.Usage(context.Background(), "fresh")
	if err != nil || used != 0 || remaining != 3 || resetAt != nil {
		t.Fatalf("unexpected usage for unseen key: used=%d remaining=%d reset=%v err=%v", used, remaining, resetAt, err)
	}
}

func TestRateLimiter_MakeKeyEscapesColons(t *testing.T) {
	limiter := &RateLimiter{prefix: "rl"}
	if got := limiter.makeKey("play|::1"); got != "rl:play|__1" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestRateLimiter_ClientKey(t *testing.T) {
	limiter := &RateLimiter{}
	r := httptest.NewRequest(http.MethodPost, "/api/play", nil)
	r.RemoteAddr = "192.168.0.1:1234"
	if got := limiter.ClientKey("play", r); got != "play|192.168.0.1" {
		t.Fatalf("unexpected client key: %s", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.0.1:1234"
	r.Header.Set("X-Real-IP", "10.0.0.1")
	if ip := ExtractClientIP(r, true); ip != "10.0.0.1" {
		t.Fatalf("expected real ip, got %s", ip)
	}
	if ip := ExtractClientIP(r, false); ip != "192.168.0.1" {
		t.Fatalf("expected proxy headers ignored, got %s", ip)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.2, 10.0.0.3")
	if ip := ExtractClientIP(r, true); ip != "10.0.0.2" {
		t.Fatalf("expected first forwarded ip, got %s", ip)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.0.1:1234"
	if ip := ExtractClientIP(r, false); ip != "192.168.0.1" {
		t.Fatalf("expected remote addr ip, got %s", ip)
	}
}
