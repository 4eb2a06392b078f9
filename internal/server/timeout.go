package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
)

type answerRecorder struct {
	http.ResponseWriter
	answered bool
}

func (w *answerRecorder) WriteHeader(code int) {
	w.answered = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *answerRecorder) Write(b []byte) (int, error) {
	w.answered = true
	return w.ResponseWriter.Write(b)
}

func (w *answerRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestTimeout bounds the request context. Handlers map their own
// deadline errors; a handler that returns without answering after the
// deadline gets 503.
func requestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rec := &answerRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			if !rec.answered && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				httputil.WriteAppError(w, r, apperr.Wrap(apperr.Unavailable, "service temporarily unavailable", ctx.Err()))
			}
		})
	}
}
