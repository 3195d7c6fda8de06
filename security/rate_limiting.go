package security

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"ticket-ledger/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// SessionToken reads the caller's session token from "Authorization: Bearer"
// or X-Session-Token.
func SessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Session-Token"))
}

// SessionResolver maps a session token to the signed-in user.
type SessionResolver interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// RateLimiter counts requests per caller in fixed redis windows.
type RateLimiter struct {
	redis    redis.Cmdable
	sessions SessionResolver
	limit    int
	window   time.Duration
}

func NewRateLimiter(redisClient redis.Cmdable, sessions SessionResolver, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redisClient, sessions: sessions, limit: limit, window: window}
}

// Allow records one request for identifier and reports whether it is within
// the limit. A limit of zero disables limiting.
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:%s", identifier)
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		r.redis.Expire(ctx, key, r.window)
	}
	return count <= int64(r.limit), nil
}

// identifier keys callers with a live session by user id. Unknown tokens
// count against the client IP like anonymous requests.
func (r *RateLimiter) identifier(e *core.RequestEvent) string {
	if token := SessionToken(e.Request); token != "" && r.sessions != nil {
		if user, err := r.sessions.Authenticate(e.Request.Context(), token); err == nil && user != nil {
			return "user:" + user.ID
		}
	}
	host, _, err := net.SplitHostPort(e.Request.RemoteAddr)
	if err != nil {
		host = e.Request.RemoteAddr
	}
	return "ip:" + host
}

// PurchaseRateLimit rejects callers over the limit with 429. Redis errors let
// the request through.
func (r *RateLimiter) PurchaseRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		id := r.identifier(e)
		allowed, err := r.Allow(e.Request.Context(), id)
		if err != nil {
			slog.Warn("Rate limiter unavailable", "identifier", id, "error", err)
			return e.Next()
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error_kind": "RateLimited",
				"message":    "Rate limit exceeded. Please try again later.",
			})
		}
		return e.Next()
	}
}

// AntiBotMiddleware turns away obvious crawlers.
func (r *RateLimiter) AntiBotMiddleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.UserAgent()) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error_kind": "Forbidden",
				"message":    "Access denied",
			})
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
