package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aidigitalagency/storefront-backend/api/responses"
	pkgerrors "github.com/aidigitalagency/storefront-backend/pkg/errors"
	"github.com/aidigitalagency/storefront-backend/pkg/logger"
	pkgredis "github.com/aidigitalagency/storefront-backend/pkg/redis"
)

type rateLimiterStore interface {
	CountWindow(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy is a fixed window shared by two counters: one per client
// address and one per authenticated user.
type RateLimitPolicy struct {
	name      string
	window    time.Duration
	ipLimit   int
	userLimit int
}

// NewRateLimitPolicy builds a policy. A zero limit disables that counter.
func NewRateLimitPolicy(name string, window time.Duration, ipLimit, userLimit int) RateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}
	return RateLimitPolicy{name: name, window: window, ipLimit: ipLimit, userLimit: userLimit}
}

func (p RateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.userLimit > 0)
}

type rateCounter struct {
	scope   string
	limit   int
	subject func(*http.Request) string
}

func (p RateLimitPolicy) counters() []rateCounter {
	var out []rateCounter
	if p.ipLimit > 0 {
		out = append(out, rateCounter{scope: "ip", limit: p.ipLimit, subject: remoteHost})
	}
	if p.userLimit > 0 {
		out = append(out, rateCounter{scope: "user", limit: p.userLimit, subject: func(r *http.Request) string {
			return UserIDFromContext(r.Context())
		}})
	}
	return out
}

// RateLimit rejects requests once any counter passes its limit inside the
// window. The client address comes from RemoteAddr, so the router must run
// chi's RealIP first. The user counter only sees requests behind Auth.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		counters := policy.counters()
		windowSeconds := strconv.Itoa(int(policy.window.Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, c := range counters {
				subject := c.subject(r)
				if subject == "" {
					continue
				}
				count, err := store.CountWindow(ctx, pkgredis.Key("rl", c.scope, policy.name, subject), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count <= int64(c.limit) {
					continue
				}
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"policy":   policy.name,
					"scope":    c.scope,
					"subject":  subject,
					"attempts": count,
					"limit":    c.limit,
				}), "request throttled")
				w.Header().Set("Retry-After", windowSeconds)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
