package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-frontdesk/internal/http/respond"
)

const (
	sweepEvery = 5 * time.Minute
	staleAfter = 10 * time.Minute
)

// Limiter is a token bucket limiter keyed by route scope and client address.
// The patient lookup and staff login groups share one Limiter but never one
// bucket, so exhausting one scope leaves the other usable.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[limitKey]*bucket
	rate      float64
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type limitKey struct {
	scope  string
	client string
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter refills rate tokens per second up to burst for every scope/client
// pair.
func NewLimiter(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[limitKey]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// take spends one token. When the bucket is empty it reports how long until
// the next token is available.
func (l *Limiter) take(scope, client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweep(now)
	}

	key := limitKey{scope: scope, client: client}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(float64(l.burst), b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Minute
	}
	return false, time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
}

func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Len reports how many buckets are live.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Scope returns middleware that charges requests to the named scope and
// answers 429 with a Retry-After hint once the client's bucket is empty.
func (l *Limiter) Scope(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.take(name, clientKey(r))
			if !ok {
				w.Header().Set("Retry-After", retryAfter(wait))
				respond.Message(w, http.StatusTooManyRequests, "Too many requests, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit is a single-scope shorthand for NewLimiter(rate, burst).Scope(scope).
func RateLimit(scope string, rate float64, burst int) func(http.Handler) http.Handler {
	return NewLimiter(rate, burst).Scope(scope)
}

// clientKey prefers the X-Real-Ip header set by chi's RealIP middleware and
// drops the ephemeral port from RemoteAddr otherwise.
func clientKey(r *http.Request) string {
	if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfter(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
