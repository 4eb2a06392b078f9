package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestStore(rps float64, burst int) (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(rps, burst)
	s.now = clock.now
	return s, clock
}

func allow(t *testing.T, s Store, key string) (bool, time.Duration) {
	t.Helper()
	ok, retry, err := s.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	return ok, retry
}

func TestMemoryStore_AllowsBurstThenDenies(t *testing.T) {
	s, _ := newTestStore(1, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := allow(t, s, "a"); !ok {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	ok, retry := allow(t, s, "a")
	if ok {
		t.Fatal("request exceeding burst should be denied")
	}
	if retry <= 0 || retry > time.Second {
		t.Errorf("retry after = %v, want within one second", retry)
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s, _ := newTestStore(1, 1)

	allow(t, s, "a")
	if ok, _ := allow(t, s, "b"); !ok {
		t.Error("a different key should have its own bucket")
	}
}

func TestMemoryStore_RefillsOverTime(t *testing.T) {
	s, clock := newTestStore(10, 1)

	allow(t, s, "a")
	if ok, _ := allow(t, s, "a"); ok {
		t.Fatal("expected denial after exhausting burst")
	}
	clock.t = clock.t.Add(150 * time.Millisecond)
	if ok, _ := allow(t, s, "a"); !ok {
		t.Error("expected a token after refill")
	}
}

func TestMemoryStore_DeniedRequestDoesNotConsume(t *testing.T) {
	s, clock := newTestStore(10, 1)

	allow(t, s, "a")
	for i := 0; i < 5; i++ {
		allow(t, s, "a")
	}
	clock.t = clock.t.Add(150 * time.Millisecond)
	if ok, _ := allow(t, s, "a"); !ok {
		t.Error("denied requests should not borrow future tokens")
	}
}

func TestMemoryStore_DropsIdleBuckets(t *testing.T) {
	s, clock := newTestStore(1, 1)

	allow(t, s, "a")
	clock.t = clock.t.Add(11 * time.Minute)
	allow(t, s, "b")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visitors["a"]; ok {
		t.Error("idle bucket should have been dropped")
	}
	if len(s.visitors) != 1 {
		t.Errorf("expected 1 bucket, got %d", len(s.visitors))
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_Returns429WithRetryAfter(t *testing.T) {
	s, _ := newTestStore(1, 1)
	handler := NewLimiter(s, "auth").Middleware(okHandler())

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, rec.Code)
		}
		if want == http.StatusTooManyRequests {
			if rec.Header().Get("Retry-After") != "1" {
				t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		}
	}
}

func TestMiddleware_KeysOnFirstForwardedAddress(t *testing.T) {
	s, _ := newTestStore(1, 1)
	handler := NewLimiter(s, "api").Middleware(okHandler())

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.5, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := send("203.0.113.5, 10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("same client through another proxy should share a bucket, got %d", code)
	}
	if code := send("198.51.100.7"); code != http.StatusOK {
		t.Errorf("another client should be allowed, got %d", code)
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("connection refused")
}

func TestMiddleware_FailsOpenWhenStoreErrors(t *testing.T) {
	handler := NewLimiter(failingStore{}, "api").Middleware(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	client, err := DialRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	key := "ratelimit-test:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { client.Del(context.Background(), key) })

	s := NewRedisStore(client, 1, 2)
	for i := 0; i < 2; i++ {
		if ok, _ := allow(t, s, key); !ok {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	ok, retry := allow(t, s, key)
	if ok {
		t.Fatal("request exceeding burst should be denied")
	}
	if retry <= 0 || retry > time.Second {
		t.Errorf("retry after = %v", retry)
	}
}
