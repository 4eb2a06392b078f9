// Package video serves the write side of videos, comments and playlists.
// Reads are composed by the views package.
package video

import (
	"context"
	"time"

	"github.com/Muhammad-Alii2/vibeverse/internal/database"
	"github.com/Muhammad-Alii2/vibeverse/internal/events"
	"github.com/Muhammad-Alii2/vibeverse/internal/storage"
	"github.com/Muhammad-Alii2/vibeverse/internal/views"
)

type BlobStore interface {
	Store(ctx context.Context, localPath string) (storage.Asset, error)
	Remove(ctx context.Context, handle string) error
}

// EdgePurger removes relation edges pointing at deleted content inside the
// deleting transaction.
type EdgePurger interface {
	PurgeVideo(ctx context.Context, db database.DBTX, videoID string) error
	PurgeComment(ctx context.Context, db database.DBTX, commentID string) error
}

type CountryResolver interface {
	Country(addr string) string
}

type Handler struct {
	db             database.DBTX
	composer       *views.Composer
	purger         EdgePurger
	blobs          BlobStore
	emitter        *events.Emitter
	geo            CountryResolver
	maxUploadBytes int64
	removeTimeout  time.Duration
}

func NewHandler(db database.DBTX, composer *views.Composer, purger EdgePurger, blobs BlobStore, maxUploadBytes int64) *Handler {
	return &Handler{
		db:             db,
		composer:       composer,
		purger:         purger,
		blobs:          blobs,
		maxUploadBytes: maxUploadBytes,
		removeTimeout:  2 * time.Minute,
	}
}

func (h *Handler) SetEmitter(e *events.Emitter) {
	h.emitter = e
}

func (h *Handler) SetCountryResolver(r CountryResolver) {
	h.geo = r
}
