package video

import (
	"fmt"
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

type playlistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type playlistResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type playlistChange struct {
	PlaylistID string `json:"playlistId"`
	VideoID    string `json:"videoId"`
	Count      int64  `json:"count"`
}

const playlistColumns = `id, owner_id, name, description, created_at, updated_at`

func scanPlaylist(row pgx.Row) (playlistResponse, error) {
	var p playlistResponse
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func (h *Handler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req playlistRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	var name, description string
	if n := trimmed(req.Name); n != nil {
		name = *n
	}
	if d := trimmed(req.Description); d != nil {
		description = *d
	}
	if err := validate.Check(validate.PlaylistName(name), validate.PlaylistDescription(description)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	p, err := scanPlaylist(h.db.QueryRow(r.Context(),
		`INSERT INTO playlists (owner_id, name, description) VALUES ($1, $2, $3)
		 RETURNING `+playlistColumns,
		userID, name, description,
	))
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "playlist"))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	playlistID := chi.URLParam(r, "playlistId")
	if err := validate.Check(validate.ID(playlistID, "playlistId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req playlistRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	req.Name, req.Description = trimmed(req.Name), trimmed(req.Description)
	if req.Name == nil && req.Description == nil {
		httputil.WriteAppError(w, r, apperr.Invalid("nothing to update"))
		return
	}

	setClauses := []string{}
	args := []any{}
	paramIdx := 1

	if req.Name != nil {
		if err := validate.Check(validate.PlaylistName(*req.Name)); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", paramIdx))
		args = append(args, *req.Name)
		paramIdx++
	}
	if req.Description != nil {
		if err := validate.Check(validate.PlaylistDescription(*req.Description)); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", paramIdx))
		args = append(args, *req.Description)
		paramIdx++
	}

	query := fmt.Sprintf(
		`UPDATE playlists SET %s, updated_at = now() WHERE id = $%d AND owner_id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), paramIdx, paramIdx+1, playlistColumns)
	args = append(args, playlistID, userID)

	p, err := scanPlaylist(h.db.QueryRow(r.Context(), query, args...))
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "playlist"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	playlistID := chi.URLParam(r, "playlistId")
	if err := validate.Check(validate.ID(playlistID, "playlistId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	tag, err := h.db.Exec(r.Context(),
		`DELETE FROM playlists WHERE id = $1 AND owner_id = $2`,
		playlistID, userID,
	)
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "playlist"))
		return
	}
	if tag.RowsAffected() == 0 {
		httputil.WriteAppError(w, r, apperr.Missing("playlist not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func playlistVideoParams(r *http.Request) (playlistID, videoID string, err error) {
	playlistID = chi.URLParam(r, "playlistId")
	videoID = chi.URLParam(r, "videoId")
	err = validate.Check(validate.ID(playlistID, "playlistId"), validate.ID(videoID, "videoId"))
	return playlistID, videoID, err
}

// AddPlaylistVideo appends the video to the end of the caller's playlist.
// Adding a video twice keeps both entries.
func (h *Handler) AddPlaylistVideo(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	playlistID, videoID, err := playlistVideoParams(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var position int64
	err = pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(r.Context(),
			`INSERT INTO playlist_videos (playlist_id, video_id)
			 SELECT p.id, v.id FROM playlists p, videos v
			 WHERE p.id = $1 AND p.owner_id = $3
			   AND v.id = $2 AND (v.is_published OR v.owner_id = $3)
			 RETURNING position`,
			playlistID, videoID, userID,
		).Scan(&position); err != nil {
			return err
		}
		_, err := tx.Exec(r.Context(),
			`UPDATE playlists SET updated_at = now() WHERE id = $1`,
			playlistID,
		)
		return err
	})
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "playlist or video"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, playlistChange{PlaylistID: playlistID, VideoID: videoID, Count: 1})
}

// RemovePlaylistVideo removes every occurrence of the video from the
// caller's playlist.
func (h *Handler) RemovePlaylistVideo(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	playlistID, videoID, err := playlistVideoParams(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var removed int64
	err = pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
		var owned bool
		if err := tx.QueryRow(r.Context(),
			`SELECT EXISTS(SELECT 1 FROM playlists WHERE id = $1 AND owner_id = $2)`,
			playlistID, userID,
		).Scan(&owned); err != nil {
			return err
		}
		if !owned {
			return apperr.Missing("playlist not found")
		}

		tag, err := tx.Exec(r.Context(),
			`DELETE FROM playlist_videos WHERE playlist_id = $1 AND video_id = $2`,
			playlistID, videoID,
		)
		if err != nil {
			return err
		}
		if removed = tag.RowsAffected(); removed == 0 {
			return apperr.Missing("video not in playlist")
		}
		_, err = tx.Exec(r.Context(),
			`UPDATE playlists SET updated_at = now() WHERE id = $1`,
			playlistID,
		)
		return err
	})
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "playlist"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, playlistChange{PlaylistID: playlistID, VideoID: videoID, Count: removed})
}
