package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/suivivente/apps/api/internal/audit"
	"github.com/suivivente/apps/api/internal/auth"
	"github.com/suivivente/apps/api/internal/config"
	"github.com/suivivente/apps/api/internal/httpx"
	"github.com/suivivente/apps/api/internal/importer"
	"github.com/suivivente/apps/api/internal/middleware"
	"github.com/suivivente/apps/api/internal/store"
)

// ImportRunStore records import runs and their per-row results.
// *store.Store implements it.
type ImportRunStore interface {
	CreateImportRun(ctx context.Context, p store.CreateImportRunParams) (store.ImportRun, error)
	CompleteImportRun(ctx context.Context, id uuid.UUID, status string, summaryJSON []byte) (store.ImportRun, error)
	GetImportRun(ctx context.Context, id uuid.UUID) (store.ImportRun, error)
	InsertImportRowResults(ctx context.Context, runID uuid.UUID, results []store.ImportRowResult) error
	ListImportRowResults(ctx context.Context, runID uuid.UUID, severity string, limit int) ([]store.ImportRowResult, error)
}

type Server struct {
	Config   config.Config
	Store    *store.Store
	Runs     ImportRunStore
	Importer *importer.Service
	Audit    *audit.Logger
	Logger   *slog.Logger
}

func NewServer(cfg config.Config, st *store.Store, svc *importer.Service, auditLogger *audit.Logger, logger *slog.Logger) *Server {
	s := &Server{Config: cfg, Store: st, Importer: svc, Audit: auditLogger, Logger: logger}
	if st != nil {
		s.Runs = st
	}
	return s
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	User userResponse `json:"user"`
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) PostAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "email and password are required", nil)
		return
	}

	user, err := s.Store.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load user", nil)
		return
	}
	matched := err == nil && user.IsActive
	if matched {
		ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Password verification failed", nil)
			return
		}
		matched = ok
	}
	if !matched {
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
		return
	}

	if old, err := r.Cookie(s.Config.SessionCookieName); err == nil && old.Value != "" {
		_ = s.Store.RevokeSessionByTokenHash(r.Context(), auth.HashToken(old.Value))
	}

	sessionToken, err := auth.GenerateToken()
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create session", nil)
		return
	}
	csrfToken, err := auth.GenerateToken()
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create CSRF token", nil)
		return
	}

	expiresAt := time.Now().Add(s.Config.SessionTTL)
	sessionID, err := s.Store.CreateSession(r.Context(), store.CreateSessionParams{
		UserID:    user.ID,
		TokenHash: auth.HashToken(sessionToken),
		CSRFToken: csrfToken,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to save session", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		Expires:  expiresAt,
	})

	userID := user.ID
	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     &userID,
		Action:     "auth.login",
		EntityType: "session",
		EntityID:   &sessionID,
		RequestID:  httpx.RequestIDFromContext(r.Context()),
	})

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{User: userResponse{
		ID:       user.ID.String(),
		Email:    user.Email,
		FullName: user.FullName,
		Role:     user.Role,
	}})
}

func (s *Server) PostAuthLogout(w http.ResponseWriter, r *http.Request) {
	actor, userID, ok := requireActorID(w, r)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(actor.SessionID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid session", nil)
		return
	}

	if err := s.Store.RevokeSession(r.Context(), sessionID); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to revoke session", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Config.SecureCookies,
		MaxAge:   -1,
	})

	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     &userID,
		Action:     "auth.logout",
		EntityType: "session",
		EntityID:   &sessionID,
		RequestID:  httpx.RequestIDFromContext(r.Context()),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetAuthMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{User: userResponse{
		ID:       actor.UserID,
		Email:    actor.Email,
		FullName: actor.FullName,
		Role:     actor.Role,
	}})
}

func (s *Server) GetAuthCsrf(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": actor.CSRFToken})
}
