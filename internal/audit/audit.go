package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Logger struct {
	db Execer
}

func NewLogger(db Execer) *Logger {
	return &Logger{db: db}
}

type Entry struct {
	UserID     *uuid.UUID
	Action     string
	Details    string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	from := attributionFrom(ctx)
	userID := entry.UserID
	if userID == nil {
		userID = from.userID
	}
	var requestID *string
	switch {
	case entry.RequestID != "":
		requestID = &entry.RequestID
	case from.requestID != "":
		requestID = &from.requestID
	}

	if _, err := l.db.Exec(ctx, `
		INSERT INTO logs (user_id, action, details, entity_type, entity_id, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, userID, entry.Action, entry.Details, entry.EntityType, entry.EntityID, requestID, metadata); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type contextKey struct{}

type attribution struct {
	userID    *uuid.UUID
	requestID string
}

// WithRequest attributes entries logged under ctx to the given user and
// request when the entry does not name them itself. userID may be nil.
func WithRequest(ctx context.Context, userID *uuid.UUID, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, attribution{userID: userID, requestID: requestID})
}

func attributionFrom(ctx context.Context) attribution {
	a, _ := ctx.Value(contextKey{}).(attribution)
	return a
}
