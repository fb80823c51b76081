package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/daap14/askdb/internal/api/response"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a token bucket per client. Authenticated requests are
// keyed by principal, others by remote IP. Stale limiters are swept until ctx
// is done.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiter creates a RateLimiter and starts its sweeper.
func NewRateLimiter(ctx context.Context, cfg RateLimitConfig) *RateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{cfg: cfg, clients: make(map[string]*clientLimiter)}
	go rl.sweep(ctx)
	return rl
}

func (rl *RateLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(rl.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, cl := range rl.clients {
				if now.Sub(cl.lastSeen) > rl.cfg.IdleTTL {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// Handler returns the rate-limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiter(clientKey(r))

		reservation := limiter.Reserve()
		if !reservation.OK() {
			tooManyRequests(w, r, 0)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			tooManyRequests(w, r, int(delay.Seconds())+1)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))

		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the authenticated principal. X-Forwarded-For is ignored.
func clientKey(r *http.Request) string {
	if id := GetIdentity(r.Context()); id != nil {
		return "principal:" + id.PrincipalID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

func tooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	response.Err(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded", GetRequestID(r.Context()))
}
