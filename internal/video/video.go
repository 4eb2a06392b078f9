package video

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/events"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
	"github.com/Muhammad-Alii2/vibeverse/internal/storage"
	"github.com/Muhammad-Alii2/vibeverse/internal/validate"
)

// Record is a video row as returned by the write endpoints.
type Record struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	VideoURL    string    `json:"videoFile"`
	Thumbnail   string    `json:"thumbnail"`
	Duration    int       `json:"duration"`
	Views       int64     `json:"views"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const recordColumns = `id, owner_id, title, description, video_url, thumbnail_url,
	duration_seconds, views, is_published, created_at, updated_at`

func scanRecord(row pgx.Row, extra ...any) (Record, error) {
	var v Record
	dest := []any{&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.Thumbnail,
		&v.Duration, &v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return v, err
}

type updateVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func parseDuration(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds > math.MaxInt32 {
		return 0, apperr.Invalid("duration must be a non-negative number of seconds")
	}
	return int(math.Round(seconds)), nil
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserIDFromContext(r.Context())

	if err := httputil.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if err := validate.Check(validate.Title(title), validate.Description(description)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	duration, err := parseDuration(r.FormValue("duration"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	videoPath, err := httputil.SaveFormFile(r, "videoFile")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	thumbnailPath, err := httputil.SaveFormFile(r, "thumbnail")
	defer httputil.RemoveFiles(videoPath, thumbnailPath)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if videoPath == "" {
		httputil.WriteAppError(w, r, apperr.Invalid("videoFile is required"))
		return
	}
	if thumbnailPath == "" {
		httputil.WriteAppError(w, r, apperr.Invalid("thumbnail is required"))
		return
	}

	videoAsset, err := h.blobs.Store(r.Context(), videoPath)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	thumbnailAsset, err := h.blobs.Store(r.Context(), thumbnailPath)
	if err != nil {
		storage.Discard(h.blobs, h.removeTimeout, videoAsset.Handle)
		httputil.WriteAppError(w, r, err)
		return
	}

	rec, err := scanRecord(h.db.QueryRow(r.Context(),
		`INSERT INTO videos (owner_id, title, description, video_url, video_handle, thumbnail_url, thumbnail_handle, duration_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+recordColumns,
		ownerID, title, description, videoAsset.URL, videoAsset.Handle,
		thumbnailAsset.URL, thumbnailAsset.Handle, duration,
	))
	if err != nil {
		storage.Discard(h.blobs, h.removeTimeout, videoAsset.Handle, thumbnailAsset.Handle)
		httputil.WriteAppError(w, r, apperr.FromStore(err, "video"))
		return
	}

	h.emitter.Emit(events.Event{
		Type:       events.VideoPublished,
		ActorID:    ownerID,
		TargetKind: "video",
		TargetID:   rec.ID,
	})
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// Get returns the video and counts the request as a view.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	if err := validate.Check(validate.ID(videoID, "videoId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	viewerID := auth.UserIDFromContext(r.Context())

	detail, err := h.composer.Video(r.Context(), viewerID, videoID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if h.recordView(r.Context(), r, videoID, viewerID) {
		detail.Views++
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserIDFromContext(r.Context())
	videoID := chi.URLParam(r, "videoId")
	if err := validate.Check(validate.ID(videoID, "videoId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req updateVideoRequest
	var thumbnailPath string
	defer func() { httputil.RemoveFiles(thumbnailPath) }()

	if httputil.IsMultipart(r) {
		if err := httputil.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		var err error
		if thumbnailPath, err = httputil.SaveFormFile(r, "thumbnail"); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	} else if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if req.Title == "" && req.Description == "" && thumbnailPath == "" {
		httputil.WriteAppError(w, r, apperr.Invalid("at least one of title, description or thumbnail is required"))
		return
	}

	var msgs []string
	if req.Title != "" {
		msgs = append(msgs, validate.Title(req.Title))
	}
	msgs = append(msgs, validate.Description(req.Description))
	if err := validate.Check(msgs...); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	setClauses := []string{}
	args := []any{}
	paramIdx := 1

	if req.Title != "" {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", paramIdx))
		args = append(args, req.Title)
		paramIdx++
	}
	if req.Description != "" {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", paramIdx))
		args = append(args, req.Description)
		paramIdx++
	}

	var thumbnail storage.Asset
	if thumbnailPath != "" {
		var err error
		if thumbnail, err = h.blobs.Store(r.Context(), thumbnailPath); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		setClauses = append(setClauses,
			fmt.Sprintf("thumbnail_url = $%d", paramIdx),
			fmt.Sprintf("thumbnail_handle = $%d", paramIdx+1))
		args = append(args, thumbnail.URL, thumbnail.Handle)
		paramIdx += 2
	}

	query := fmt.Sprintf(
		`UPDATE videos SET %s, updated_at = now()
		 WHERE id = $%d AND owner_id = $%d
		 RETURNING %s`,
		strings.Join(setClauses, ", "), paramIdx, paramIdx+1, recordColumns)
	args = append(args, videoID, ownerID)

	var rec Record
	var previous string
	var err error
	if thumbnail.Handle == "" {
		rec, err = scanRecord(h.db.QueryRow(r.Context(), query, args...))
	} else {
		// The row stays locked between reading the old thumbnail and
		// replacing it, so racing replacements each discard their own predecessor.
		err = pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
			if err := tx.QueryRow(r.Context(),
				`SELECT thumbnail_handle FROM videos WHERE id = $1 AND owner_id = $2 FOR UPDATE`,
				videoID, ownerID,
			).Scan(&previous); err != nil {
				return err
			}
			var err error
			rec, err = scanRecord(tx.QueryRow(r.Context(), query, args...))
			return err
		})
	}
	if err != nil {
		storage.Discard(h.blobs, h.removeTimeout, thumbnail.Handle)
		httputil.WriteAppError(w, r, apperr.FromStore(err, "video"))
		return
	}

	if thumbnail.Handle != "" && previous != thumbnail.Handle {
		storage.Discard(h.blobs, h.removeTimeout, previous)
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// Delete removes the video with its likes, comments and their likes in one
// transaction. Playlist entries, history and view rows go by foreign key.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserIDFromContext(r.Context())
	videoID := chi.URLParam(r, "videoId")
	if err := validate.Check(validate.ID(videoID, "videoId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var videoHandle, thumbnailHandle string
	err := pgx.BeginFunc(r.Context(), h.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(r.Context(),
			`SELECT video_handle, thumbnail_handle FROM videos WHERE id = $1 AND owner_id = $2 FOR UPDATE`,
			videoID, ownerID,
		).Scan(&videoHandle, &thumbnailHandle); err != nil {
			return err
		}
		if err := h.purger.PurgeVideo(r.Context(), tx, videoID); err != nil {
			return err
		}
		_, err := tx.Exec(r.Context(), `DELETE FROM videos WHERE id = $1`, videoID)
		return err
	})
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "video"))
		return
	}

	storage.Discard(h.blobs, h.removeTimeout, videoHandle, thumbnailHandle)
	w.WriteHeader(http.StatusNoContent)
}

type publishStatus struct {
	ID          string `json:"id"`
	IsPublished bool   `json:"isPublished"`
}

func (h *Handler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserIDFromContext(r.Context())
	videoID := chi.URLParam(r, "videoId")
	if err := validate.Check(validate.ID(videoID, "videoId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	status := publishStatus{ID: videoID}
	err := h.db.QueryRow(r.Context(),
		`UPDATE videos SET is_published = NOT is_published, updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING is_published`,
		videoID, ownerID,
	).Scan(&status.IsPublished)
	if err != nil {
		httputil.WriteAppError(w, r, apperr.FromStore(err, "video"))
		return
	}

	if status.IsPublished {
		h.emitter.Emit(events.Event{
			Type:       events.VideoPublished,
			ActorID:    ownerID,
			TargetKind: "video",
			TargetID:   videoID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}
