package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/suivivente/apps/api/internal/httpx"
	"github.com/suivivente/apps/api/internal/middleware"
)

func requireActorID(w http.ResponseWriter, r *http.Request) (middleware.Actor, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return middleware.Actor{}, uuid.Nil, false
	}
	userID, err := uuid.Parse(actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid user", nil)
		return middleware.Actor{}, uuid.Nil, false
	}
	return actor, userID, true
}

func truncateText(value string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(value) <= max {
		return value
	}
	return value[:max]
}

func stringPtrOrNil(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
