package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Muhammad-Alii2/vibeverse/internal/logging"
)

func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func TestSlogMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		want   []string
	}{
		{"success", "/api/v1/videos", http.StatusOK, []string{"method=GET", "path=/api/v1/videos", "status=200", "remote_addr=", "duration_ms="}},
		{"not found", "/api/v1/videos/missing", http.StatusNotFound, []string{"status=404"}},
		{"health check skipped", "/api/health", http.StatusOK, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureDefaultLog(t)

			r := chi.NewRouter()
			r.Use(slogMiddleware)
			r.Get(tc.path, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, rec.Code)
			}

			output := buf.String()
			if tc.want == nil {
				if output != "" {
					t.Errorf("expected no log output, got: %s", output)
				}
				return
			}
			for _, field := range tc.want {
				if !strings.Contains(output, field) {
					t.Errorf("expected log to contain %q, got: %s", field, output)
				}
			}
		})
	}
}

func TestRequestLogger_TagsAccessLogWithRequestID(t *testing.T) {
	buf := captureDefaultLog(t)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, requestLogger, slogMiddleware)
	var seen string
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req-42" {
		t.Errorf("request id on context = %q, want req-42", seen)
	}
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("expected access log to carry the request id, got: %s", buf.String())
	}
}
