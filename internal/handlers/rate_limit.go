package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"treasure-chest/internal/config"
	"treasure-chest/internal/logger"
)

// Области лимита: у каждой свой счётчик на IP клиента.
const (
	ScopeRedeem = "redeem"
	ScopePlay   = "play"
	ScopeAdmin  = "admin"
	ScopeAPI    = "api"
)

// KindRateLimited категория ответа 429.
const KindRateLimited = "rate_limited"

var rateLimitScopes = []string{ScopeRedeem, ScopePlay, ScopeAdmin, ScopeAPI}

func knownScope(scope string) bool {
	for _, s := range rateLimitScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RateLimitHandler отвечает за статус лимита.
type RateLimitHandler struct {
	limiter RateLimitStatusProvider
	log     *logger.Logger
	cfg     *config.RateLimitConfig
}

// NewRateLimitHandler создает новый RateLimitHandler.
func NewRateLimitHandler(limiter RateLimitStatusProvider, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimitHandler {
	return &RateLimitHandler{
		limiter: limiter,
		log:     log,
		cfg:     cfg,
	}
}

type scopeUsage struct {
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	ResetAt   string `json:"reset_at,omitempty"`
}

type rateLimitStatus struct {
	Enabled       bool                  `json:"enabled"`
	Limit         int                   `json:"limit,omitempty"`
	WindowSeconds int                   `json:"window_seconds,omitempty"`
	Scopes        map[string]scopeUsage `json:"scopes,omitempty"`
}

// Status возвращает расход лимита клиента: по ?scope= или по всем областям сразу.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.limiter == nil || h.cfg == nil || !h.cfg.Enabled {
		writeJSONResponse(w, http.StatusOK, rateLimitStatus{Enabled: false})
		return
	}

	scopes := rateLimitScopes
	if scope := r.URL.Query().Get("scope"); scope != "" {
		if !knownScope(scope) {
			writeKindErrorResponse(w, http.StatusBadRequest, "Unknown rate limit scope", "validation")
			return
		}
		scopes = []string{scope}
	}

	resp := rateLimitStatus{
		Enabled:       true,
		Limit:         h.cfg.Requests,
		WindowSeconds: h.cfg.WindowSeconds,
		Scopes:        make(map[string]scopeUsage, len(scopes)),
	}
	for _, scope := range scopes {
		used, remaining, resetAt, err := h.limiter.Usage(r.Context(), h.limiter.ClientKey(scope, r))
		if err != nil {
			h.log.WithError(err).WithField("scope", scope).Error("Failed to fetch rate limit usage")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to fetch rate limit usage")
			return
		}
		usage := scopeUsage{Used: used, Remaining: remaining}
		if resetAt != nil {
			usage.ResetAt = resetAt.Format(time.RFC3339)
		}
		resp.Scopes[scope] = usage
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

// MiddlewareLimiter описывает контракт для rate limiter.
type MiddlewareLimiter interface {
	Allow(ctx context.Context, key string) (bool, int64, time.Time, error)
	ClientKey(scope string, r *http.Request) string
	Enabled() bool
	Limit() int64
}

// RateLimitStatusProvider расширяет интерфейс для эндпоинта статуса.
type RateLimitStatusProvider interface {
	MiddlewareLimiter
	Usage(ctx context.Context, key string) (int64, int64, *time.Time, error)
}

// RateLimitMiddleware применяет rate limiting к хендлеру; счётчик ведётся по области и IP клиента.
func RateLimitMiddleware(limiter MiddlewareLimiter, scope string, log *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter == nil || !limiter.Enabled() {
			next(w, r)
			return
		}

		key := limiter.ClientKey(scope, r)
		allowed, remaining, resetAt, err := limiter.Allow(r.Context(), key)
		if err != nil {
			log.WithError(err).WithField("scope", scope).Error("Rate limiter failed")
			writeErrorResponse(w, http.StatusInternalServerError, "Rate limiter error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limiter.Limit(), 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !resetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		}

		if !allowed {
			log.WithFields(map[string]interface{}{
				"scope": scope,
				"path":  r.URL.Path,
			}).Warn("Rate limit exceeded")
			if !resetAt.IsZero() {
				if wait := int64(time.Until(resetAt).Seconds()) + 1; wait > 0 {
					w.Header().Set("Retry-After", strconv.FormatInt(wait, 10))
				}
			}
			writeKindErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded", KindRateLimited)
			return
		}

		next(w, r)
	}
}
