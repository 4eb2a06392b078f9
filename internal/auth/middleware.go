package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
	"github.com/Muhammad-Alii2/vibeverse/internal/httputil"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Middleware rejects requests without a valid access token.
func Middleware(signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := accessTokenFrom(r)
			if err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}

			claims, err := signer.ParseAccess(tokenStr)
			if err != nil {
				httputil.WriteAppError(w, r, ErrInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.Subject)))
		})
	}
}

// OptionalMiddleware resolves the viewer when a valid access token is
// present. Missing, expired or tampered tokens leave the request anonymous.
func OptionalMiddleware(signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenStr, err := accessTokenFrom(r); err == nil {
				if claims, err := signer.ParseAccess(tokenStr); err == nil {
					r = r.WithContext(WithUserID(r.Context(), claims.Subject))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessTokenFrom(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenStr == "" {
			return "", apperr.Unauthenticated("invalid authorization header format")
		}
		return tokenStr, nil
	}
	if cookie, err := r.Cookie(accessCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	return "", apperr.Unauthenticated("authorization required")
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
