package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

var rateLimitTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per key (client IP, user id, ...).
// Idle visitors are dropped by the first lookup made once ttl has elapsed.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	key       func(ctx echo.Context) string
}

// byIP keys anonymous endpoints on the client address.
func byIP(ctx echo.Context) string { return ctx.RealIP() }

// byUser keys authenticated endpoints on the session user, so clients sharing an address get their own bucket.
func byUser(ctx echo.Context) string { return getContextSession(ctx).UserID() }

func newRateLimiter(reqPerMin, burst int, ttl time.Duration, key func(ctx echo.Context) string) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if reqPerMin > 0 {
		limit = rate.Limit(float64(reqPerMin) / 60.0)
	}
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     limit,
		burst:     burst,
		ttl:       ttl,
		lastSweep: time.Now(),
		key:       key,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > rl.ttl {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !rl.allow(rl.key(ctx)) {
			return errTooManyRequests
		}
		return next(ctx)
	}
}
