package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

const defaultBatchSize = 50

type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

// Storage is the persistence collaborator. InsertSales must insert the sales
// and decrement the matching product stock in one transaction, returning the
// import keys it actually inserted.
type Storage interface {
	FindExistingSales(ctx context.Context, importKeys []string) (map[string]struct{}, error)
	InsertSales(ctx context.Context, sales []Sale) ([]string, error)
	UpsertStockLevels(ctx context.Context, levels []StockLevel) (int, error)
	AppendAuditLog(ctx context.Context, action, details string) error
}

// RowLimitError rejects files with more data rows than the service accepts.
type RowLimitError struct {
	Max  int
	Rows int
}

func (e *RowLimitError) Error() string {
	return fmt.Sprintf("file has %d rows, the limit is %d", e.Rows, e.Max)
}

type Service struct {
	store     Storage
	logger    *slog.Logger
	batchSize int
	maxRows   int
}

type Option func(*Service)

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxRows caps the number of data rows per file; 0 disables the cap.
func WithMaxRows(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRows = n
		}
	}
}

func NewService(store Storage, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{store: store, logger: logger, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview is the result of decoding, normalizing, classifying and shaping a
// file. Nothing has been written when a Preview is returned.
type Preview struct {
	Kind        Kind
	Filename    string
	Diagnostics Diagnostics
	Records     []ClassifiedRecord
	Valid       []ClassifiedRecord
	Duplicates  []ClassifiedRecord
	Sales       []Sale
	Stock       []StockLevel
	Warnings    []Warning
	Totals      Totals
}

// Totals sums every row of the file, duplicates included.
type Totals struct {
	Revenue  decimal.Decimal `json:"revenue"`
	Quantity int             `json:"quantity"`
}

// Outcome summarizes an import. In dry-run mode Success counts the rows
// that would be written. Every row counted in Duplicates is listed in
// exactly one of DuplicateRows and ExistingRows.
type Outcome struct {
	Mode          Mode           `json:"mode"`
	Kind          Kind           `json:"kind"`
	Total         int            `json:"total"`
	Success       int            `json:"success"`
	Duplicates    int            `json:"duplicates"`
	Existing      int            `json:"existing"`
	Errors        int            `json:"errors"`
	ErrorDetails  []string       `json:"errorDetails"`
	Warnings      []Warning      `json:"warnings"`
	DuplicateRows []int          `json:"duplicateRows,omitempty"`
	ExistingRows  []int          `json:"existingRows,omitempty"`
	RowErrors     []*CommitError `json:"-"`
}

func (o *Outcome) fail(err *CommitError) {
	o.Errors++
	o.RowErrors = append(o.RowErrors, err)
	o.ErrorDetails = append(o.ErrorDetails, err.Error())
}

// Preview runs the decode, normalize and classify stages and shapes the new
// records into entities.
func (s *Service) Preview(ctx context.Context, kind Kind, filename string, data []byte) (*Preview, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown import kind %q", kind)
	}

	decoded, err := Decode(filename, data)
	if err != nil {
		return nil, err
	}
	if s.maxRows > 0 && len(decoded.Records) > s.maxRows {
		return nil, &RowLimitError{Max: s.maxRows, Rows: len(decoded.Records)}
	}
	s.logger.DebugContext(ctx, "import_decoded",
		"filename", filename,
		"format", decoded.Diagnostics.Format,
		"delimiter", decoded.Diagnostics.Delimiter,
		"rows", decoded.Diagnostics.RowCount,
	)

	normalized, err := Normalize(decoded.Records, kind)
	if err != nil {
		return nil, err
	}

	part := Classify(normalized, kind.Columns())
	p := &Preview{
		Kind:        kind,
		Filename:    filename,
		Diagnostics: decoded.Diagnostics,
		Records:     mergeInOrder(part),
		Valid:       part.Valid,
		Duplicates:  part.Duplicates,
	}
	switch kind {
	case KindSales:
		p.Sales, p.Warnings = ToSales(part.Valid)
	case KindStock:
		p.Stock, p.Warnings = ToStockLevels(part.Valid)
	}
	p.Totals = computeTotals(kind, p.Records)
	s.logger.DebugContext(ctx, "import_classified",
		"filename", filename,
		"valid", len(part.Valid),
		"duplicates", len(part.Duplicates),
		"warnings", len(p.Warnings),
	)
	return p, nil
}

// Run executes a full import. Decode and schema failures are returned as
// errors; everything after classification is reported in the Outcome.
func (s *Service) Run(ctx context.Context, mode Mode, kind Kind, filename string, data []byte) (*Preview, Outcome, error) {
	p, err := s.Preview(ctx, kind, filename, data)
	if err != nil {
		return nil, Outcome{}, err
	}
	if mode == ModeApply {
		return p, s.Commit(ctx, p), nil
	}
	return p, s.DryRun(ctx, p), nil
}

// DryRun reports what Commit would do without writing.
func (s *Service) DryRun(ctx context.Context, p *Preview) Outcome {
	out := s.newOutcome(ModeDryRun, p)
	switch p.Kind {
	case KindSales:
		out.Success = len(s.planSales(ctx, p, &out))
	case KindStock:
		out.Success = len(planStock(p, &out))
	}
	return out
}

// Commit writes the preview through the storage collaborator.
func (s *Service) Commit(ctx context.Context, p *Preview) Outcome {
	out := s.newOutcome(ModeApply, p)
	switch p.Kind {
	case KindSales:
		s.commitSales(ctx, s.planSales(ctx, p, &out), &out)
	case KindStock:
		s.commitStock(ctx, planStock(p, &out), &out)
	}

	details := fmt.Sprintf("Imported %d %s rows from %s, %d duplicates, %d errors",
		out.Success, p.Kind, p.Filename, out.Duplicates, out.Errors)
	if s.store != nil {
		if err := s.store.AppendAuditLog(ctx, p.Kind.auditAction(), details); err != nil {
			s.logger.WarnContext(ctx, "audit_log_failed", "action", p.Kind.auditAction(), "error", err)
		}
	}
	s.logger.InfoContext(ctx, "import_completed",
		"kind", p.Kind,
		"filename", p.Filename,
		"success", out.Success,
		"duplicates", out.Duplicates,
		"errors", out.Errors,
	)
	return out
}

func (s *Service) newOutcome(mode Mode, p *Preview) Outcome {
	out := Outcome{
		Mode:         mode,
		Kind:         p.Kind,
		Total:        len(p.Records),
		Duplicates:   len(p.Duplicates),
		ErrorDetails: []string{},
		Warnings:     append([]Warning(nil), p.Warnings...),
	}
	for _, d := range p.Duplicates {
		out.DuplicateRows = append(out.DuplicateRows, d.RowNumber)
	}
	return out
}

func (o *Outcome) markExisting(row int) {
	o.Existing++
	o.Duplicates++
	o.ExistingRows = append(o.ExistingRows, row)
}

// markDuplicate records a row whose coerced values repeat an earlier row
// although the raw cells differ, such as 14,00 and 14.
func (o *Outcome) markDuplicate(row int) {
	o.Duplicates++
	o.DuplicateRows = append(o.DuplicateRows, row)
	slices.Sort(o.DuplicateRows)
}

// planSales drops incomplete sales and those already persisted.
func (s *Service) planSales(ctx context.Context, p *Preview, out *Outcome) []Sale {
	candidates := make([]Sale, 0, len(p.Sales))
	for _, sale := range p.Sales {
		if missing := missingSaleFields(sale); len(missing) > 0 {
			out.fail(&CommitError{
				RowNumber: sale.SourceRow,
				Product:   sale.Product,
				Err:       fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")),
			})
			continue
		}
		candidates = append(candidates, sale)
	}
	if len(candidates) == 0 {
		return nil
	}

	existing := map[string]struct{}{}
	if s.store != nil {
		keys := make([]string, len(candidates))
		for i, sale := range candidates {
			keys[i] = sale.ImportKey
		}
		found, err := s.store.FindExistingSales(ctx, keys)
		if err != nil {
			for _, sale := range candidates {
				out.fail(&CommitError{RowNumber: sale.SourceRow, Product: sale.Product, Err: fmt.Errorf("duplicate check failed: %w", err)})
			}
			return nil
		}
		existing = found
	}

	plan := make([]Sale, 0, len(candidates))
	planned := make(map[string]struct{}, len(candidates))
	for _, sale := range candidates {
		if _, ok := existing[sale.ImportKey]; ok {
			out.markExisting(sale.SourceRow)
			continue
		}
		if _, ok := planned[sale.ImportKey]; ok {
			out.markDuplicate(sale.SourceRow)
			continue
		}
		planned[sale.ImportKey] = struct{}{}
		plan = append(plan, sale)
	}
	return plan
}

func planStock(p *Preview, out *Outcome) []StockLevel {
	plan := make([]StockLevel, 0, len(p.Stock))
	for _, level := range p.Stock {
		if level.Product == "" {
			out.fail(&CommitError{RowNumber: level.SourceRow, Err: fmt.Errorf("missing required fields: product")})
			continue
		}
		if level.Quantity < 0 {
			out.fail(&CommitError{RowNumber: level.SourceRow, Product: level.Product, Err: fmt.Errorf("negative quantity %d", level.Quantity)})
			continue
		}
		plan = append(plan, level)
	}
	return plan
}

func (s *Service) commitSales(ctx context.Context, plan []Sale, out *Outcome) {
	if s.store == nil {
		for _, sale := range plan {
			out.fail(&CommitError{RowNumber: sale.SourceRow, Product: sale.Product, Err: errNoStorage})
		}
		return
	}
	for start := 0; start < len(plan); start += s.batchSize {
		batch := plan[start:min(start+s.batchSize, len(plan))]
		inserted, err := s.store.InsertSales(ctx, batch)
		if err != nil {
			s.logger.WarnContext(ctx, "import_batch_failed", "offset", start, "size", len(batch), "error", err)
			for _, sale := range batch {
				out.fail(&CommitError{RowNumber: sale.SourceRow, Product: sale.Product, Err: err})
			}
			continue
		}
		done := make(map[string]struct{}, len(inserted))
		for _, key := range inserted {
			done[key] = struct{}{}
		}
		for _, sale := range batch {
			if _, ok := done[sale.ImportKey]; ok {
				out.Success++
				continue
			}
			// persisted by someone else since planSales ran
			out.markExisting(sale.SourceRow)
		}
	}
}

func (s *Service) commitStock(ctx context.Context, plan []StockLevel, out *Outcome) {
	if s.store == nil {
		for _, level := range plan {
			out.fail(&CommitError{RowNumber: level.SourceRow, Product: level.Product, Err: errNoStorage})
		}
		return
	}
	for start := 0; start < len(plan); start += s.batchSize {
		batch := plan[start:min(start+s.batchSize, len(plan))]
		n, err := s.store.UpsertStockLevels(ctx, batch)
		if err != nil {
			s.logger.WarnContext(ctx, "import_batch_failed", "offset", start, "size", len(batch), "error", err)
			for _, level := range batch {
				out.fail(&CommitError{RowNumber: level.SourceRow, Product: level.Product, Err: err})
			}
			continue
		}
		out.Success += n
	}
}

// computeTotals sums the file the lenient way, without warnings, so that the
// totals show what the user uploaded rather than what will be written.
func computeTotals(kind Kind, records []ClassifiedRecord) Totals {
	t := Totals{Revenue: decimal.Zero}
	switch kind {
	case KindSales:
		sales, _ := ToSales(records)
		for _, sale := range sales {
			t.Revenue = t.Revenue.Add(sale.Total)
			t.Quantity += sale.Quantity
		}
	case KindStock:
		levels, _ := ToStockLevels(records)
		for _, level := range levels {
			t.Quantity += level.Quantity
		}
	}
	return t
}

// mergeInOrder interleaves both partitions back into file order.
func mergeInOrder(p Partition) []ClassifiedRecord {
	out := make([]ClassifiedRecord, 0, len(p.Valid)+len(p.Duplicates))
	i, j := 0, 0
	for i < len(p.Valid) || j < len(p.Duplicates) {
		if j >= len(p.Duplicates) || (i < len(p.Valid) && p.Valid[i].RowNumber < p.Duplicates[j].RowNumber) {
			out = append(out, p.Valid[i])
			i++
			continue
		}
		out = append(out, p.Duplicates[j])
		j++
	}
	return out
}
