package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	Role         string
	IsActive     bool
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, role, is_active
		FROM users
		WHERE lower(email) = lower($1)
	`, email).Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.IsActive)
	if err != nil {
		return User{}, notFound(err)
	}
	return u, nil
}

// UpsertUser creates the user or refreshes its name, role and password.
func (s *Store) UpsertUser(ctx context.Context, email, fullName, passwordHash, role string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ((lower(email))) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    password_hash = EXCLUDED.password_hash,
		    role = EXCLUDED.role,
		    updated_at = now()
		RETURNING id
	`, email, fullName, passwordHash, role).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}

type CreateSessionParams struct {
	UserID    uuid.UUID
	TokenHash string
	CSRFToken string
	ExpiresAt time.Time
}

func (s *Store) CreateSession(ctx context.Context, p CreateSessionParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (user_id, token_hash, csrf_token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, p.UserID, p.TokenHash, p.CSRFToken, p.ExpiresAt).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// SessionPrincipal is a live session joined with its user.
type SessionPrincipal struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Email     string
	FullName  string
	Role      string
	CSRFToken string
	ExpiresAt time.Time
}

func (s *Store) GetSessionPrincipal(ctx context.Context, tokenHash string) (SessionPrincipal, error) {
	var p SessionPrincipal
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, u.id, u.email, u.full_name, u.role, s.csrf_token, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
		  AND u.is_active
	`, tokenHash).Scan(&p.SessionID, &p.UserID, &p.Email, &p.FullName, &p.Role, &p.CSRFToken, &p.ExpiresAt)
	if err != nil {
		return SessionPrincipal{}, notFound(err)
	}
	return p, nil
}

func (s *Store) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET last_seen_at = now() WHERE id = $1`, sessionID)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, sessionID)
	return err
}

func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE sessions SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`, tokenHash)
	return err
}
