// Package store is the PostgreSQL persistence layer. Store satisfies
// importer.Storage and carries the queries used by the HTTP handlers.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suivivente/apps/api/internal/audit"
	"github.com/suivivente/apps/api/internal/importer"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool  *pgxpool.Pool
	audit *audit.Logger
}

var _ importer.Storage = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, audit: audit.NewLogger(pool)}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// AppendAuditLog records a free-text action in the logs table, attributed
// through audit.WithRequest when ctx carries it.
func (s *Store) AppendAuditLog(ctx context.Context, action, details string) error {
	return s.audit.Log(ctx, audit.Entry{Action: action, Details: details})
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
