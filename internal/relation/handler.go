package relation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/auth"
	"github.com/Muhammad-Alii2/vibeverse/internal/events"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
	"github.com/Muhammad-Alii2/vibeverse/internal/validate"
)

type Handler struct {
	engine  *Engine
	emitter *events.Emitter
}

func NewHandler(engine *Engine, emitter *events.Emitter) *Handler {
	return &Handler{engine: engine, emitter: emitter}
}

func (h *Handler) ToggleVideoLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, KindVideo, chi.URLParam(r, "videoId"), "videoId")
}

func (h *Handler) ToggleCommentLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, KindComment, chi.URLParam(r, "commentId"), "commentId")
}

func (h *Handler) ToggleTweetLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, KindTweet, chi.URLParam(r, "tweetId"), "tweetId")
}

func (h *Handler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelId")
	if channelID != "" && channelID == auth.UserIDFromContext(r.Context()) {
		httputil.WriteAppError(w, r, apperr.Invalid("cannot subscribe to your own channel"))
		return
	}
	h.toggle(w, r, KindChannel, channelID, "channelId")
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, kind Kind, targetID, field string) {
	if err := validate.Check(validate.ID(targetID, field)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	actorID := auth.UserIDFromContext(r.Context())

	exists, err := h.engine.TargetExists(r.Context(), kind, targetID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if !exists {
		httputil.WriteAppError(w, r, apperr.Missing(string(kind)+" not found"))
		return
	}

	res, err := h.engine.Toggle(r.Context(), actorID, kind, targetID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	eventType := events.LikeToggled
	if kind == KindChannel {
		eventType = events.SubscriptionToggled
	}
	h.emitter.Emit(events.Event{
		Type:       eventType,
		ActorID:    actorID,
		TargetKind: string(kind),
		TargetID:   targetID,
		State:      string(res.State),
	})

	httputil.WriteJSON(w, http.StatusOK, res)
}
