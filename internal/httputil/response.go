package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/logging"
)

const maxJSONBodyBytes = 1 << 20

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type MessageBody struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, MessageBody{Message: message})
}

// WriteAppError renders err according to its apperr.Kind. Internal and
// Unavailable failures are logged with their cause; the response only ever
// carries the caller-safe message.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal || kind == apperr.Unavailable {
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", string(kind),
			"error", err,
		)
	}
	if kind == apperr.Unavailable {
		w.Header().Set("Retry-After", "5")
	}
	WriteJSON(w, apperr.Status(kind), ErrorBody{Error: apperr.MessageOf(err), Code: string(kind)})
}

// DecodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Invalid("invalid request body")
	}
	return nil
}
