package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/billbatista/rateio/session"
	"github.com/billbatista/rateio/user"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	UserKey   contextKey = "user"
)

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// AuthMiddleware resolves the session from the session cookie or a bearer token and puts the
// user in the request context. Requests without a valid session pass through anonymously.
func AuthMiddleware(sessionRepo session.Repository, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fromCookie := sessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessionRepo.GetByToken(r.Context(), token)
			if err != nil {
				slog.Info("invalid/expired session")
				if fromCookie {
					http.SetCookie(w, &http.Cookie{
						Name:   session.CookieName,
						Value:  "",
						Path:   "/",
						MaxAge: -1,
					})
				}
				next.ServeHTTP(w, r)
				return
			}

			u, err := users.GetByID(r.Context(), sess.UserID)
			if err != nil {
				slog.Error("failed to fetch user", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if u == nil || !u.IsActive {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, u.ID)
			ctx = context.WithValue(ctx, UserKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, value, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(value), false
		}
	}
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		return cookie.Value, true
	}
	return "", false
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(r.Context()) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLedgerAccess checks the authenticated user against the ledger named by the ledgerID
// URL parameter. With manage set the user must also be allowed to change it.
func RequireLedgerAccess(manage bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := GetUser(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ledgerID, err := uuid.Parse(chi.URLParam(r, "ledgerID"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid ledger id")
				return
			}

			if !u.CanAccess(ledgerID, manage) {
				writeError(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

func GetUser(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserKey).(*user.User)
	return u, ok && u != nil
}

// IsAuthenticated checks if user is authenticated
func IsAuthenticated(ctx context.Context) bool {
	_, ok := GetUser(ctx)
	return ok
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
