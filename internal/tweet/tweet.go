// Package tweet serves short text posts. Listings are composed by the
// views package.
package tweet

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/database"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
	"github.com/Muhammad-Alii2/vibeverse/internal/validate"
)

type LikePurger interface {
	PurgeTweet(ctx context.Context, db database.DBTX, tweetID string) error
}

type Handler struct {
	db     database.DBTX
	purger LikePurger
}

func NewHandler(db database.DBTX, purger LikePurger) *Handler {
	return &Handler{db: db, purger: purger}
}

type tweetRequest struct {
	Content string `json:"content"`
}

type tweetResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const tweetColumns = `id, owner_id, content, created_at, updated_at`

func scanTweet(row pgx.Row) (tweetResponse, error) {
	var t tweetResponse
	err := row.Scan(&t.ID, &t.OwnerID, &t.Content, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func decodeContent(r *http.Request) (string, error) {
	var req tweetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return "", err
	}
	content := strings.TrimSpace(req.Content)
	return content, validate.Check(validate.Tweet(content))
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	content, err := decodeContent(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	t, err := scanTweet(h.db.QueryRow(r.Context(),
		`INSERT INTO tweets (owner_id, content) VALUES ($1, $2) RETURNING `+tweetColumns,
		userID, content,
	))
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "tweet"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	tweetID := chi.URLParam(r, "tweetId")
	if err := validate.Check(validate.ID(tweetID, "tweetId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	content, err := decodeContent(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	t, err := scanTweet(h.db.QueryRow(r.Context(),
		`UPDATE tweets SET content = $3, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+tweetColumns,
		tweetID, userID, content,
	))
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "tweet"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// Delete removes the caller's tweet together with its likes.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	tweetID := chi.URLParam(r, "tweetId")
	if err := validate.Check(validate.ID(tweetID, "tweetId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	err := pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(r.Context(),
			`DELETE FROM tweets WHERE id = $1 AND owner_id = $2`,
			tweetID, userID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.Missing("tweet not found")
		}
		return h.purger.PurgeTweet(r.Context(), tx, tweetID)
	})
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "tweet"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
