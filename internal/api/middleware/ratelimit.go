package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP with a token bucket.
// A client's limiter is dropped once it has been idle for the TTL; idle
// entries are swept at most once per TTL, from the request path.
//
// The client IP is r.RemoteAddr. It only reflects X-Forwarded-For when the
// router trusts proxy headers, so spoofed headers cannot mint new buckets
// on a directly exposed server.
type RateLimiter struct {
	perMinute int
	burst     int
	ttl       time.Duration
	limiters  sync.Map // client ip -> *cachedLimiter
	nextSweep atomic.Int64
}

type cachedLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimitOption configures a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithTTL sets how long an idle client's limiter is kept.
func WithTTL(ttl time.Duration) RateLimitOption {
	return func(rl *RateLimiter) { rl.ttl = ttl }
}

// NewRateLimiter allows perMinute requests per client with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int, opts ...RateLimitOption) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{perMinute: perMinute, burst: burst, ttl: 10 * time.Minute}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.ttl <= 0 {
		rl.ttl = 10 * time.Minute
	}
	return rl
}

// Middleware returns the rate limiting handler wrapper.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		now := time.Now()
		limiter := rl.limiterFor(clientIP(r), now)
		rl.maybeSweep(now)
		if !limiter.Allow() {
			retry := time.Duration(float64(time.Minute) / float64(rl.perMinute))
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many agent runs, retry later"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	v, ok := rl.limiters.Load(ip)
	if !ok {
		fresh := &cachedLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMinute)), rl.burst),
		}
		v, _ = rl.limiters.LoadOrStore(ip, fresh)
	}
	cached := v.(*cachedLimiter)
	cached.lastSeen.Store(now.UnixNano())
	return cached.limiter
}

func (rl *RateLimiter) maybeSweep(now time.Time) {
	next := rl.nextSweep.Load()
	if now.UnixNano() < next {
		return
	}
	if rl.nextSweep.CompareAndSwap(next, now.Add(rl.ttl).UnixNano()) {
		rl.Sweep(now)
	}
}

// Sweep drops limiters idle for longer than the TTL and returns how many
// it removed.
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-rl.ttl).UnixNano()
	removed := 0
	rl.limiters.Range(func(key, v any) bool {
		if v.(*cachedLimiter).lastSeen.Load() < cutoff && rl.limiters.CompareAndDelete(key, v) {
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	n := 0
	rl.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
