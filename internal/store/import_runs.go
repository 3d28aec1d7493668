package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	SeverityError = "error"
	SeverityWarn  = "warn"
	SeverityInfo  = "info"
)

type ImportRun struct {
	ID          uuid.UUID
	CreatedBy   *uuid.UUID
	Kind        string
	Filename    string
	FileSHA256  string
	Mode        string
	Status      string
	SummaryJSON []byte
	CreatedAt   time.Time
	CompletedAt *time.Time
}

type CreateImportRunParams struct {
	CreatedBy  *uuid.UUID
	Kind       string
	Filename   string
	FileSHA256 string
	Mode       string
}

const importRunColumns = `id, created_by_user_id, kind, filename, file_sha256, mode, status, summary_json, created_at, completed_at`

func scanImportRun(row pgx.Row) (ImportRun, error) {
	var run ImportRun
	err := row.Scan(&run.ID, &run.CreatedBy, &run.Kind, &run.Filename, &run.FileSHA256, &run.Mode,
		&run.Status, &run.SummaryJSON, &run.CreatedAt, &run.CompletedAt)
	return run, err
}

// CreateImportRun records a run as failed; CompleteImportRun settles it.
func (s *Store) CreateImportRun(ctx context.Context, p CreateImportRunParams) (ImportRun, error) {
	run, err := scanImportRun(s.pool.QueryRow(ctx, `
		INSERT INTO import_runs (created_by_user_id, kind, filename, file_sha256, mode, status)
		VALUES ($1, $2, $3, $4, $5, 'failed')
		RETURNING `+importRunColumns,
		p.CreatedBy, p.Kind, p.Filename, p.FileSHA256, p.Mode))
	if err != nil {
		return ImportRun{}, fmt.Errorf("create import run: %w", err)
	}
	return run, nil
}

func (s *Store) CompleteImportRun(ctx context.Context, id uuid.UUID, status string, summaryJSON []byte) (ImportRun, error) {
	run, err := scanImportRun(s.pool.QueryRow(ctx, `
		UPDATE import_runs
		SET status = $2, summary_json = $3, completed_at = now()
		WHERE id = $1
		RETURNING `+importRunColumns,
		id, status, summaryJSON))
	if err != nil {
		return ImportRun{}, fmt.Errorf("complete import run: %w", notFound(err))
	}
	return run, nil
}

func (s *Store) GetImportRun(ctx context.Context, id uuid.UUID) (ImportRun, error) {
	run, err := scanImportRun(s.pool.QueryRow(ctx, `SELECT `+importRunColumns+` FROM import_runs WHERE id = $1`, id))
	if err != nil {
		return ImportRun{}, notFound(err)
	}
	return run, nil
}

type ImportRowResult struct {
	RowNumber int
	Severity  string
	Result    string
	Field     *string
	Message   string
	RawValue  *string
}

// InsertImportRowResults bulk-loads row results with COPY.
func (s *Store) InsertImportRowResults(ctx context.Context, runID uuid.UUID, results []ImportRowResult) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([][]any, len(results))
	for i, r := range results {
		rows[i] = []any{runID, int32(r.RowNumber), r.Severity, r.Result, r.Field, r.Message, r.RawValue}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"import_row_results"},
		[]string{"import_run_id", "row_number", "severity", "result", "field", "message", "raw_value"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy import row results: %w", err)
	}
	return nil
}

// ListImportRowResults returns a run's rows in row order. An empty severity
// matches every row; limit <= 0 means no limit.
func (s *Store) ListImportRowResults(ctx context.Context, runID uuid.UUID, severity string, limit int) ([]ImportRowResult, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT row_number, severity, result, field, message, raw_value
		FROM import_row_results
		WHERE import_run_id = $1
		  AND ($2 = '' OR severity = $2)
		ORDER BY row_number, created_at
		LIMIT $3
	`, runID, severity, lim)
	if err != nil {
		return nil, fmt.Errorf("query import row results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ImportRowResult, error) {
		var r ImportRowResult
		err := row.Scan(&r.RowNumber, &r.Severity, &r.Result, &r.Field, &r.Message, &r.RawValue)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan import row results: %w", err)
	}
	return results, nil
}
