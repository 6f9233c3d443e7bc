package services

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"
	"treasure-chest/internal/redis"
)

// RateLimiter ограничивает число попыток в фиксированном окне на ключ (область + IP),
// чтобы перебор кодов через /api/redeem и /api/play был медленным.
type RateLimiter struct {
	redis      rateRedis
	log        *logger.Logger
	enabled    bool
	limit      int64
	window     time.Duration
	prefix     string
	trustProxy bool
}

type rateRedis interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// NewRateLimiter создаёт rate limiter; без Redis или конфигурации он выключен.
func NewRateLimiter(redisClient *redis.Client, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	if redisClient == nil || cfg == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.WindowSeconds <= 0 {
		return &RateLimiter{enabled: false}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = redis.KeyPrefixRateLimit
	}

	return &RateLimiter{
		redis:      redisClient,
		log:        log,
		enabled:    true,
		limit:      int64(cfg.Requests),
		window:     time.Duration(cfg.WindowSeconds) * time.Second,
		prefix:     prefix,
		trustProxy: cfg.TrustProxy,
	}
}

// Allow учитывает запрос и возвращает признак разрешения, остаток и время сброса окна.
func (r *RateLimiter) Allow(ctx context.Context, key string) (allowed bool, remaining int64, resetAt time.Time, err error) {
	if !r.enabled {
		return true, r.limit, time.Now().Add(r.window), nil
	}

	now := time.Now()
	redisKey := r.makeKey(key)

	count, err := r.redis.Incr(ctx, redisKey)
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limiter incr failed: %w", err)
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, redisKey, r.window); err != nil {
			r.log.WithError(err).WithField("key", redisKey).Warn("Failed to set rate limit ttl")
		}
	}

	ttl, ttlErr := r.redis.TTL(ctx, redisKey)
	if ttlErr != nil || ttl <= 0 {
		ttl = r.window
	}

	remaining = r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	resetAt = now.Add(ttl)

	if count == r.limit+1 {
		r.log.WithField("key", key).Warn("Rate limit exceeded")
	}

	return count <= r.limit, remaining, resetAt, nil
}

// Usage возвращает текущее значение окна без учёта запроса.
func (r *RateLimiter) Usage(ctx context.Context, key string) (used int64, remaining int64, resetAt *time.Time, err error) {
	if !r.enabled {
		return 0, r.limit, nil, nil
	}

	redisKey := r.makeKey(key)
	count, err := r.redis.GetInt(ctx, redisKey)
	if err != nil {
		// нет ключа: окно ещё не открыто
		return 0, r.limit, nil, nil
	}

	if ttl, ttlErr := r.redis.TTL(ctx, redisKey); ttlErr == nil && ttl > 0 {
		tmp := time.Now().Add(ttl)
		resetAt = &tmp
	}

	remaining = r.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return count, remaining, resetAt, nil
}

func (r *RateLimiter) makeKey(key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	return fmt.Sprintf("%s:%s", r.prefix, safeKey)
}

// Limit возвращает лимит для текущего окна.
func (r *RateLimiter) Limit() int64 {
	return r.limit
}

// Enabled сообщает, включён ли rate limiting.
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// ClientKey строит ключ лимита для области (например, "play") и клиента.
func (r *RateLimiter) ClientKey(scope string, req *http.Request) string {
	return scope + "|" + ExtractClientIP(req, r.trustProxy)
}

// ExtractClientIP получает IP клиента. Заголовки прокси учитываются только при trustProxy,
// иначе их может подделать сам клиент.
func ExtractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
