package video

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/mssola/useragent"
)

type client struct {
	bot     bool
	device  string
	browser string
}

func classifyClient(userAgent string) client {
	if strings.TrimSpace(userAgent) == "" {
		return client{device: "unknown", browser: "unknown"}
	}
	ua := useragent.New(userAgent)
	c := client{bot: ua.Bot(), device: "desktop"}
	if ua.Mobile() {
		c.device = "mobile"
	}
	c.browser, _ = ua.Browser()
	if c.browser == "" {
		c.browser = "unknown"
	}
	return c
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	return r.RemoteAddr
}

// recordView counts one view of videoID: the views counter, the viewer's
// watch history and an analytics row, all in one transaction. Crawlers are
// not counted. Failures are logged and reported as not counted.
func (h *Handler) recordView(ctx context.Context, r *http.Request, videoID, viewerID string) bool {
	c := classifyClient(r.UserAgent())
	if c.bot {
		return false
	}
	var country string
	if h.geo != nil {
		country = h.geo.Country(clientIP(r))
	}

	err := pgx.BeginFunc(ctx, h.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE videos SET views = views + 1 WHERE id = $1`,
			videoID,
		); err != nil {
			return err
		}
		if viewerID != "" {
			if _, err := tx.Exec(ctx,
				`INSERT INTO watch_history (user_id, video_id, watched_at) VALUES ($1, $2, now())
				 ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`,
				viewerID, videoID,
			); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO video_views (video_id, viewer_id, country, device, browser)
			 VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)`,
			videoID, viewerID, country, c.device, c.browser,
		)
		return err
	})
	if err != nil {
		slog.Warn("video: failed to record view", "video_id", videoID, "error", err)
		return false
	}
	return true
}
