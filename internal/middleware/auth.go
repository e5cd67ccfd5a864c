package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/suratbrts/cms/internal/apperr"
	"github.com/suratbrts/cms/internal/auth"
)

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth validates the bearer token and populates the Principal.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}
			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, apperr.HTTPStatus(apperr.KindOf(err)), apperr.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), p)))
		})
	}
}

// OptionalAuth populates the Principal when a bearer token is present and
// lets anonymous requests through. A token that fails to verify is still
// rejected.
func OptionalAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, apperr.HTTPStatus(apperr.KindOf(err)), apperr.Message(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), p)))
		})
	}
}

// RequireUser allows only signed-in citizens.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) == 0 {
			writeError(w, http.StatusForbidden, "User access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin allows only admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission allows admins whose current role grants perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok || !p.Can(perm) {
				writeError(w, http.StatusForbidden, "Permission denied: "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
