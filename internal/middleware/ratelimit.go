package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ledgerai/ledgerai/internal/models"
)

// rateWindow is how far back a key's admitted requests are counted.
const rateWindow = time.Minute

// slidingWindow holds the arrival times of the requests one key was allowed
// to make during the trailing rateWindow. Rejected requests are not recorded,
// so a client that keeps retrying is let back in once its oldest admitted
// request ages out.
type slidingWindow struct {
	mu       sync.Mutex
	requests []time.Time
	limit    int
}

// allow admits a request if fewer than limit were admitted in the window. On
// rejection retryAfter is the time until the oldest one leaves the window.
func (sw *slidingWindow) allow(now time.Time) (remaining int, retryAfter time.Duration, ok bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	valid := sw.requests[:0]
	for _, t := range sw.requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	sw.requests = valid

	if len(sw.requests) >= sw.limit {
		return 0, sw.requests[0].Sub(cutoff), false
	}
	sw.requests = append(sw.requests, now)
	return sw.limit - len(sw.requests), 0, true
}

// RateLimiter keeps one sliding window per caller key: the authenticated
// owner id when there is one, otherwise the client IP.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	limit   int
}

func NewRateLimiter(limitPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*slidingWindow),
		limit:   limitPerMinute,
	}
	// Cleanup goroutine
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			rl.cleanup()
		}
	}()
	return rl
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-rateWindow)
	for key, sw := range rl.windows {
		sw.mu.Lock()
		if len(sw.requests) == 0 || sw.requests[len(sw.requests)-1].Before(cutoff) {
			delete(rl.windows, key)
		}
		sw.mu.Unlock()
	}
}

func (rl *RateLimiter) window(key string) *slidingWindow {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if sw, ok := rl.windows[key]; ok {
		return sw
	}
	sw := &slidingWindow{limit: rl.limit}
	rl.windows[key] = sw
	return sw
}

// RateLimit admits at most limitPerMinute requests per caller key in any
// trailing minute and answers the rest with 429 and a Retry-After in seconds.
func RateLimit(limitPerMinute int) func(http.Handler) http.Handler {
	rl := NewRateLimiter(limitPerMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := rl.window(clientKey(r))
			remaining, retryAfter, ok := sw.allow(time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limitPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				models.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey prefers the authenticated owner, so Auth must run first, and
// falls back to the client IP.
func clientKey(r *http.Request) string {
	if owner, ok := OwnerFromContext(r.Context()); ok {
		return "owner:" + owner
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
