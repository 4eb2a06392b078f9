package views

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
	"github.com/Muhammad-Alii2/vibeverse/internal/paging"
	"github.com/Muhammad-Alii2/vibeverse/internal/relation"
	"github.com/Muhammad-Alii2/vibeverse/internal/validate"
)

type Handler struct {
	composer *Composer
}

func NewHandler(composer *Composer) *Handler {
	return &Handler{composer: composer}
}

func (h *Handler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	ch, err := h.composer.ChannelProfile(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "username"))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ch)
}

func (h *Handler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.composer.WatchHistory(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) LikedVideos(w http.ResponseWriter, r *http.Request) {
	items, err := h.composer.LikedVideos(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.composer.ChannelStats(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) DashboardVideos(w http.ResponseWriter, r *http.Request) {
	p := paging.Parse(r.URL.Query(), VideoSort)
	page, err := h.composer.ChannelVideos(r.Context(), auth.UserIDFromContext(r.Context()), p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) SearchVideos(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("userId")
	if ownerID != "" {
		if err := validate.Check(validate.ID(ownerID, "userId")); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	}
	p := paging.Parse(r.URL.Query(), VideoSort)
	page, err := h.composer.SearchVideos(r.Context(), auth.UserIDFromContext(r.Context()), ownerID, p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) VideoComments(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	if err := validate.Check(validate.ID(videoID, "videoId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	p := paging.Parse(r.URL.Query(), CommentSort)
	page, err := h.composer.VideoComments(r.Context(), auth.UserIDFromContext(r.Context()), videoID, p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) UserTweets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := validate.Check(validate.ID(userID, "userId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	p := paging.Parse(r.URL.Query(), TweetSort)
	page, err := h.composer.UserTweets(r.Context(), auth.UserIDFromContext(r.Context()), userID, p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) UserPlaylists(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if err := validate.Check(validate.ID(userID, "userId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	p := paging.Parse(r.URL.Query(), PlaylistSort)
	page, err := h.composer.UserPlaylists(r.Context(), userID, p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) Playlist(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistId")
	if err := validate.Check(validate.ID(playlistID, "playlistId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	pl, err := h.composer.Playlist(r.Context(), auth.UserIDFromContext(r.Context()), playlistID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pl)
}

func (h *Handler) ChannelSubscribers(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	if err := validate.Check(validate.ID(channelID, "channelId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	p := paging.Parse(r.URL.Query(), relation.EdgeSort)
	page, err := h.composer.ChannelSubscribers(r.Context(), auth.UserIDFromContext(r.Context()), channelID, p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) SubscribedChannels(w http.ResponseWriter, r *http.Request) {
	subscriberID := chi.URLParam(r, "subscriberId")
	if err := validate.Check(validate.ID(subscriberID, "subscriberId")); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	p := paging.Parse(r.URL.Query(), relation.EdgeSort)
	page, err := h.composer.SubscribedChannels(r.Context(), auth.UserIDFromContext(r.Context()), subscriberID, p)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}
