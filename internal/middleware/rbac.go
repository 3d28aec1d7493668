package middleware

import (
	"net/http"
	"slices"

	"github.com/suivivente/apps/api/internal/httpx"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RequireRole admits actors holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}
			if !slices.Contains(roles, actor.Role) {
				httpx.WriteError(w, r, http.StatusForbidden, "forbidden", "Permission denied", map[string]any{"requiredRoles": roles})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
