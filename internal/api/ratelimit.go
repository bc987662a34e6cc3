package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter applies per-client token-bucket admission: each identity gets a
// bucket refilled lazily at request time, allowing bursts up to capacity
// while bounding the sustained rate. Buckets are created on first sight and
// capped in number; when the cap is exceeded the least recently used
// identity is evicted.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket

	capacity float64
	refill   float64 // tokens per second
	maxIDs   int
	exclude  []string // path prefixes that bypass limiting
	logger   *slog.Logger
	now      func() time.Time
}

type tokenBucket struct {
	tokens  float64
	refill  time.Time // last refill
	touched time.Time // last request, for LRU eviction
}

// NewLimiter creates a limiter admitting perMinute sustained requests per
// client with a burst of the same size. maxIdentities caps tracked clients.
func NewLimiter(perMinute, maxIdentities int, logger *slog.Logger, excludePrefixes ...string) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if maxIdentities < 1 {
		maxIdentities = 10_000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		buckets:  make(map[string]*tokenBucket),
		capacity: float64(perMinute),
		refill:   float64(perMinute) / 60.0,
		maxIDs:   maxIdentities,
		exclude:  excludePrefixes,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow performs the refill-then-consume check for one identity. When the
// request is rejected it also reports how long until the next token.
func (l *Limiter) Allow(id string) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.buckets[id]
	if !exists {
		b = &tokenBucket{tokens: l.capacity, refill: now}
		l.buckets[id] = b
		l.evictLocked(id)
	}

	elapsed := now.Sub(b.refill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed*l.refill)
		b.refill = now
	}
	b.touched = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}

	wait := (1 - b.tokens) / l.refill
	return false, time.Duration(wait * float64(time.Second))
}

// evictLocked drops the least recently used identity once over the cap.
// keep is the identity just inserted and is never the victim.
func (l *Limiter) evictLocked(keep string) {
	if len(l.buckets) <= l.maxIDs {
		return
	}
	var victim string
	var oldest time.Time
	for id, b := range l.buckets {
		if id == keep {
			continue
		}
		if victim == "" || b.touched.Before(oldest) {
			victim = id
			oldest = b.touched
		}
	}
	if victim != "" {
		delete(l.buckets, victim)
	}
}

// Middleware enforces the limit on every request outside the excluded
// prefixes. Rejected requests get a 429 JSON body with Retry-After set.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range l.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		ok, retryAfter := l.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		secs := int(math.Ceil(retryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
