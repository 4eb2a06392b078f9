package video

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
	"github.com/Muhammad-Alii2/vibeverse/internal/validate"
)

type commentRequest struct {
	Content string `json:"content"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	OwnerID   string    `json:"owner"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const commentColumns = `id, video_id, owner_id, content, created_at, updated_at`

func scanComment(row pgx.Row) (commentResponse, error) {
	var c commentResponse
	err := row.Scan(&c.ID, &c.VideoID, &c.OwnerID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func decodeComment(r *http.Request) (string, error) {
	var req commentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		return "", err
	}
	content := strings.TrimSpace(req.Content)
	return content, validate.Check(validate.Comment(content))
}

// AddComment posts on a video the caller can see.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	videoID := chi.URLParam(r, "videoId")
	if err := validate.Check(validate.ID(videoID, "videoId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	content, err := decodeComment(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	c, err := scanComment(h.db.QueryRow(r.Context(),
		`INSERT INTO comments (video_id, owner_id, content)
		 SELECT v.id, $2, $3 FROM videos v
		 WHERE v.id = $1 AND (v.is_published OR v.owner_id = $2)
		 RETURNING `+commentColumns,
		videoID, userID, content,
	))
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "video"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	commentID := chi.URLParam(r, "commentId")
	if err := validate.Check(validate.ID(commentID, "commentId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	content, err := decodeComment(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	c, err := scanComment(h.db.QueryRow(r.Context(),
		`UPDATE comments SET content = $3, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+commentColumns,
		commentID, userID, content,
	))
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "comment"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// DeleteComment removes the caller's comment and the likes on it.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	commentID := chi.URLParam(r, "commentId")
	if err := validate.Check(validate.ID(commentID, "commentId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	err := pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
		var deleted string
		if err := tx.QueryRow(r.Context(),
			`DELETE FROM comments WHERE id = $1 AND owner_id = $2 RETURNING id`,
			commentID, userID,
		).Scan(&deleted); err != nil {
			return err
		}
		return h.purger.PurgeComment(r.Context(), tx, commentID)
	})
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "comment"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
