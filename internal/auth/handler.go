package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
	"github.com/Muhammad-Alii2/vibeverse/internal/storage"
	"github.com/Muhammad-Alii2/vibeverse/internal/validate"
)

type BlobStore interface {
	Store(ctx context.Context, localPath string) (storage.Asset, error)
	Remove(ctx context.Context, handle string) error
}

type Handler struct {
	store          *Store
	blobs          BlobStore
	purger         EdgePurger
	secureCookies  bool
	maxUploadBytes int64
	removeTimeout  time.Duration
}

func NewHandler(store *Store, blobs BlobStore, secureCookies bool, maxUploadBytes int64) *Handler {
	return &Handler{
		store:          store,
		blobs:          blobs,
		secureCookies:  secureCookies,
		maxUploadBytes: maxUploadBytes,
		removeTimeout:  30 * time.Second,
	}
}

func (h *Handler) SetEdgePurger(p EdgePurger) {
	h.purger = p
}

func (h *Handler) Middleware(next http.Handler) http.Handler {
	return Middleware(h.store.signer)(next)
}

func (h *Handler) OptionalMiddleware(next http.Handler) http.Handler {
	return OptionalMiddleware(h.store.signer)(next)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User Account `json:"user"`
	Session
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	var avatarPath, coverPath string
	defer func() { httputil.RemoveFiles(avatarPath, coverPath) }()

	if httputil.IsMultipart(r) {
		if err := httputil.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		req = registerRequest{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			FullName: r.FormValue("fullName"),
			Password: r.FormValue("password"),
		}
		var err error
		if avatarPath, err = httputil.SaveFormFile(r, "avatar"); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		if coverPath, err = httputil.SaveFormFile(r, "coverImage"); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	} else if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	if err := validate.Check(
		validate.Username(req.Username),
		validate.Email(req.Email),
		validate.FullName(req.FullName),
		validate.Password(req.Password),
	); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	in := NewAccount{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	}

	if avatarPath != "" {
		asset, err := h.blobs.Store(r.Context(), avatarPath)
		if err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		in.AvatarURL, in.AvatarHandle = asset.URL, asset.Handle
	}
	if coverPath != "" {
		asset, err := h.blobs.Store(r.Context(), coverPath)
		if err != nil {
			storage.Discard(h.blobs, h.removeTimeout, in.AvatarHandle)
			httputil.WriteAppError(w, r, err)
			return
		}
		in.CoverImageURL, in.CoverImageHandle = asset.URL, asset.Handle
	}

	account, err := h.store.CreateAccount(r.Context(), in)
	if err != nil {
		storage.Discard(h.blobs, h.removeTimeout, in.AvatarHandle, in.CoverImageHandle)
		httputil.WriteAppError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, account)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	if strings.TrimSpace(identifier) == "" || req.Password == "" {
		httputil.WriteAppError(w, r, apperr.Invalid("username or email and password are required"))
		return
	}

	account, err := h.store.Authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	session, err := h.store.IssueSession(r.Context(), account.ID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.setSessionCookies(w, session)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{User: account, Session: session})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Revoke(r.Context(), UserIDFromContext(r.Context())); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	h.clearSessionCookies(w)
	httputil.WriteMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var presented string
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
		presented = req.RefreshToken
	}
	if presented == "" {
		httputil.WriteAppError(w, r, apperr.Unauthenticated("refresh token required"))
		return
	}

	session, err := h.store.Refresh(r.Context(), presented)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	h.setSessionCookies(w, session)
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if req.OldPassword == "" {
		httputil.WriteAppError(w, r, apperr.Invalid("old password is required"))
		return
	}
	if err := validate.Check(validate.Password(req.NewPassword)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := h.store.ChangeCredential(r.Context(), UserIDFromContext(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "password changed")
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	account, err := h.store.AccountByID(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	in := ProfileUpdate{
		Username: strings.ToLower(strings.TrimSpace(req.Username)),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		FullName: strings.TrimSpace(req.FullName),
	}
	if in.Username == "" && in.Email == "" && in.FullName == "" {
		httputil.WriteAppError(w, r, apperr.Invalid("at least one of username, email or fullName is required"))
		return
	}

	var msgs []string
	if in.Username != "" {
		msgs = append(msgs, validate.Username(in.Username))
	}
	if in.Email != "" {
		msgs = append(msgs, validate.Email(in.Email))
	}
	if in.FullName != "" {
		msgs = append(msgs, validate.FullName(in.FullName))
	}
	if err := validate.Check(msgs...); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	account, err := h.store.UpdateProfile(r.Context(), UserIDFromContext(r.Context()), in)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceMedia(w, r, MediaAvatar, "avatar")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceMedia(w, r, MediaCoverImage, "coverImage")
}

func (h *Handler) replaceMedia(w http.ResponseWriter, r *http.Request, media Media, field string) {
	if err := httputil.ParseMultipart(w, r, h.maxUploadBytes); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	path, err := httputil.SaveFormFile(r, field)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if path == "" {
		httputil.WriteAppError(w, r, apperr.Invalid(field+" file is required"))
		return
	}
	defer httputil.RemoveFiles(path)

	asset, err := h.blobs.Store(r.Context(), path)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	account, previous, err := h.store.ReplaceMedia(r.Context(), UserIDFromContext(r.Context()), media, asset.URL, asset.Handle)
	if err != nil {
		storage.Discard(h.blobs, h.removeTimeout, asset.Handle)
		httputil.WriteAppError(w, r, err)
		return
	}

	storage.Discard(h.blobs, h.removeTimeout, previous)
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	handles, err := h.store.DeleteAccount(r.Context(), UserIDFromContext(r.Context()), h.purger)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	storage.Discard(h.blobs, h.removeTimeout, handles...)
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, session Session) {
	h.setCookie(w, accessCookie, session.AccessToken, int(h.store.signer.AccessTTL()/time.Second))
	h.setCookie(w, refreshCookie, session.RefreshToken, int(h.store.signer.RefreshTTL()/time.Second))
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.setCookie(w, accessCookie, "", -1)
	h.setCookie(w, refreshCookie, "", -1)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}
