package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"syntax/internal/shared/apperr"
	"syntax/internal/shared/auth"
)

type ContextKey string

const SessionKey ContextKey = "session"

// SessionCookie carries the session token for browser clients.
const SessionCookie = "access_token"

// Auth verifies the session token from the access_token cookie or the
// Authorization bearer header and stores the decoded session in the context.
func Auth(codec *auth.SessionCodec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := tokenFromRequest(r)
			if !ok {
				writeAuthError(w, apperr.New(apperr.TokenExpiredOrInvalid, "authentication required"))
				return
			}

			session, err := codec.Verify(token)
			if err != nil {
				writeAuthError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFrom returns the session stored by Auth.
func SessionFrom(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*auth.Session)
	return s, ok && s != nil
}

// WithSession is used by tests and background callers that bypass Auth.
func WithSession(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

func tokenFromRequest(r *http.Request) (string, bool) {
	// Try HttpOnly cookie first (browser requests)
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	// Fall back to Authorization header (API clients)
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeAuthError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="syntax"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"kind":    kind.String(),
			"message": apperr.MessageOf(err),
		},
	})
}
