package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/suivivente/apps/api/internal/auth"
	"github.com/suivivente/apps/api/internal/httpx"
	"github.com/suivivente/apps/api/internal/store"
)

// SessionStore resolves session cookies. *store.Store implements it.
type SessionStore interface {
	GetSessionPrincipal(ctx context.Context, tokenHash string) (store.SessionPrincipal, error)
	TouchSession(ctx context.Context, sessionID uuid.UUID) error
}

type AuthMiddleware struct {
	Sessions   SessionStore
	CookieName string
}

func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.CookieName)
		if err != nil || cookie.Value == "" {
			httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		principal, err := m.Sessions.GetSessionPrincipal(r.Context(), auth.HashToken(cookie.Value))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Session is invalid", nil)
				return
			}
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load session", nil)
			return
		}

		_ = m.Sessions.TouchSession(r.Context(), principal.SessionID)

		ctx := WithActor(r.Context(), Actor{
			SessionID: principal.SessionID.String(),
			UserID:    principal.UserID.String(),
			Email:     principal.Email,
			FullName:  principal.FullName,
			Role:      principal.Role,
			CSRFToken: principal.CSRFToken,
			ExpiresAt: principal.ExpiresAt,
		})
		AddLogFields(ctx, "user_id", principal.UserID.String(), "role", principal.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
