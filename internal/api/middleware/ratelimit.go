package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alialshehriar/bithrah-app-sub003/internal/metrics"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
// When Redis is unavailable it fails open: letting a burst through is
// cheaper than refusing live negotiations.
type RateLimiter struct {
	redis        *store.RedisStore
	limits       map[string]RateLimit
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist []string // IPs or CIDRs exempt from rate limiting
}

// NewRateLimiter creates a rate limiter with the negotiation endpoint limits.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		redis:        redis,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		limits: map[string]RateLimit{
			"POST /negotiations":           {10, time.Hour, actorKey},
			"POST /negotiations/deposit":   {20, time.Hour, actorKey},
			"POST /negotiations/messages":  {30, time.Minute, actorKey},
			"POST /negotiations/cancel":    {10, time.Hour, actorKey},
			"POST /negotiations/finalize":  {10, time.Hour, actorKey},
			"GET /negotiations":            {120, time.Minute, actorKey},
			"GET /negotiations/messages":   {120, time.Minute, actorKey},
		},
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	return rl
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, limit, ok := rl.match(r)
		if !ok || rl.isWhitelisted(RealIP(r)) {
			next.ServeHTTP(w, r)
			return
		}

		key := endpoint + ":" + limit.KeyFunc(r)
		allowed, err := rl.redis.CheckRateLimit(r.Context(), key, limit.Requests, limit.Window)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Retry-After", "60")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := rl.redis.IncrementRateLimit(r.Context(), key, limit.Window); err != nil {
			rl.logger.Warn().Err(err).Msg("rate limit increment failed")
		}

		next.ServeHTTP(w, r)
	})
}

// match normalizes the request to one of the configured endpoint patterns.
func (rl *RateLimiter) match(r *http.Request) (string, RateLimit, bool) {
	path := r.URL.Path
	if strings.HasPrefix(path, "/negotiations/") {
		switch {
		case strings.HasSuffix(path, "/deposit"):
			path = "/negotiations/deposit"
		case strings.HasSuffix(path, "/messages"):
			path = "/negotiations/messages"
		case strings.HasSuffix(path, "/cancel"):
			path = "/negotiations/cancel"
		case strings.HasSuffix(path, "/finalize"):
			path = "/negotiations/finalize"
		default:
			path = "/negotiations"
		}
	}
	limit, ok := rl.limits[r.Method+" "+path]
	return r.Method + " " + path, limit, ok
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// actorKey limits by authenticated actor, falling back to IP.
func actorKey(r *http.Request) string {
	if actor := GetActorID(r.Context()); actor != uuid.Nil {
		return "actor:" + actor.String()
	}
	return "ip:" + RealIP(r)
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
