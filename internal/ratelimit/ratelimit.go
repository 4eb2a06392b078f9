// Package ratelimit throttles requests per client address with a token
// bucket, held in memory or shared through Redis.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Store decides whether one more request for key fits its bucket. When it
// does not, retryAfter is the wait until the next token.
type Store interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one bucket per key in process memory. Buckets idle for
// longer than the idle window are dropped.
type MemoryStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

func NewMemoryStore(requestsPerSecond float64, burst int) *MemoryStore {
	if burst <= 0 {
		burst = 1
	}
	return &MemoryStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	s.gcLocked(now)
	s.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (s *MemoryStore) gcLocked(now time.Time) {
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.idle {
			delete(s.visitors, key)
		}
	}
}

// Limiter guards handlers with a Store, keyed by client address.
type Limiter struct {
	store  Store
	prefix string
}

func NewLimiter(store Store, prefix string) *Limiter {
	return &Limiter{store: store, prefix: prefix}
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.prefix + ":" + clientIP(r)
		allowed, retryAfter, err := l.store.Allow(r.Context(), key)
		if err != nil {
			slog.Warn("ratelimit: store unavailable, allowing request", "key", key, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests","code":"RATE_LIMITED"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return r.RemoteAddr
}
