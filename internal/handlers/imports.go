package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/suivivente/apps/api/internal/audit"
	"github.com/suivivente/apps/api/internal/httpx"
	"github.com/suivivente/apps/api/internal/importer"
	"github.com/suivivente/apps/api/internal/middleware"
	"github.com/suivivente/apps/api/internal/store"
)

const (
	importStatusCompleted = "completed"
	importStatusFailed    = "failed"

	topMessagesLimit = 100
	maxMessageLength = 500
)

type importSummary struct {
	RowsTotal  int    `json:"rowsTotal"`
	Success    int    `json:"success"`
	Duplicates int    `json:"duplicates"`
	Existing   int    `json:"existing"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
	Error      string `json:"error,omitempty"`
}

type importRowMessage struct {
	RowNumber int     `json:"rowNumber"`
	Severity  string  `json:"severity"`
	Result    string  `json:"result"`
	Field     *string `json:"field,omitempty"`
	Message   string  `json:"message"`
	RawValue  *string `json:"rawValue,omitempty"`
}

type importDownloadURLs struct {
	ErrorsCSV string `json:"errorsCsv"`
}

type importRunResponse struct {
	ImportRunID  uuid.UUID             `json:"importRunId"`
	Mode         string                `json:"mode"`
	Kind         string                `json:"kind"`
	Status       string                `json:"status"`
	Filename     string                `json:"filename"`
	FileSHA256   string                `json:"fileSha256"`
	Summary      importSummary         `json:"summary"`
	Diagnostics  *importer.Diagnostics `json:"diagnostics,omitempty"`
	Totals       *importer.Totals      `json:"totals,omitempty"`
	Records      []importer.RowSummary `json:"records,omitempty"`
	TopWarnings  []importRowMessage    `json:"topWarnings"`
	TopErrors    []importRowMessage    `json:"topErrors"`
	DownloadURLs importDownloadURLs    `json:"downloadUrls"`
	CreatedAt    time.Time             `json:"createdAt"`
	CompletedAt  *time.Time            `json:"completedAt,omitempty"`
	RequestID    string                `json:"requestId"`
}

type parsedImportFile struct {
	filename   string
	fileSHA256 string
	kind       importer.Kind
	data       []byte
}

func (s *Server) PostImportsDryRun(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importer.ModeDryRun)
}

func (s *Server) PostImportsApply(w http.ResponseWriter, r *http.Request) {
	s.handleImport(w, r, importer.ModeApply)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, mode importer.Mode) {
	_, userID, ok := requireActorID(w, r)
	if !ok {
		return
	}

	parsed, appErr := parseImportUpload(r, s.Config.ImportMaxFileBytes)
	if appErr != nil {
		httpx.WriteAppError(w, r, appErr)
		return
	}
	middleware.AddLogFields(r.Context(), "import_kind", string(parsed.kind), "import_mode", string(mode))

	requestID := httpx.RequestIDFromContext(r.Context())
	ctx := audit.WithRequest(r.Context(), &userID, requestID)

	run, err := s.Runs.CreateImportRun(ctx, store.CreateImportRunParams{
		CreatedBy:  &userID,
		Kind:       string(parsed.kind),
		Filename:   parsed.filename,
		FileSHA256: parsed.fileSHA256,
		Mode:       string(mode),
	})
	if err != nil {
		s.Logger.ErrorContext(ctx, "import_run_create_failed", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to create import run", nil)
		return
	}

	runID := run.ID
	middleware.AddLogFields(r.Context(), "import_run_id", runID.String())
	startAction := "import.dry_run_started"
	completeAction := "import.dry_run_completed"
	if mode == importer.ModeApply {
		startAction = "import.apply_started"
		completeAction = "import.apply_completed"
	}
	_ = s.Audit.Log(ctx, audit.Entry{
		Action:     startAction,
		EntityType: "import_run",
		EntityID:   &runID,
		Metadata: map[string]any{
			"mode":       mode,
			"kind":       parsed.kind,
			"filename":   parsed.filename,
			"fileSha256": parsed.fileSHA256,
		},
	})

	preview, outcome, runErr := s.Importer.Run(ctx, mode, parsed.kind, parsed.filename, parsed.data)

	status := importStatusCompleted
	var summary importSummary
	var rows []store.ImportRowResult
	if runErr != nil {
		status = importStatusFailed
		summary.Error = runErr.Error()
	} else {
		summary = summarizeOutcome(outcome)
		rows = rowResults(outcome)
	}

	if err := s.Runs.InsertImportRowResults(ctx, run.ID, rows); err != nil {
		s.Logger.ErrorContext(ctx, "import_row_results_failed", "import_run_id", run.ID, "error", err)
		status = importStatusFailed
	}

	summaryJSON, _ := json.Marshal(summary)
	updatedRun, err := s.Runs.CompleteImportRun(ctx, run.ID, status, summaryJSON)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to complete import run", nil)
		return
	}

	_ = s.Audit.Log(ctx, audit.Entry{
		Action:     completeAction,
		EntityType: "import_run",
		EntityID:   &runID,
		Metadata: map[string]any{
			"mode":     mode,
			"kind":     parsed.kind,
			"filename": parsed.filename,
			"status":   status,
			"summary":  summary,
		},
	})

	if runErr != nil {
		appErr := importErrorResponse(runErr)
		appErr.Details["importRunId"] = run.ID
		httpx.WriteAppError(w, r, appErr)
		return
	}
	if status == importStatusFailed {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to record import results", map[string]any{"importRunId": run.ID})
		return
	}

	messages := mapRowResults(rows)
	response := mapImportRunResponse(updatedRun, summary,
		topMessagesBySeverity(messages, store.SeverityWarn, topMessagesLimit),
		topMessagesBySeverity(messages, store.SeverityError, topMessagesLimit),
		requestID)
	response.Diagnostics = &preview.Diagnostics
	response.Totals = &preview.Totals
	response.Records = importer.Rows(preview, outcome)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (s *Server) GetImportsImportRunId(w http.ResponseWriter, r *http.Request, importRunID uuid.UUID) {
	if _, _, ok := requireActorID(w, r); !ok {
		return
	}

	run, err := s.Runs.GetImportRun(r.Context(), importRunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import run", nil)
		return
	}

	warnings, _ := s.Runs.ListImportRowResults(r.Context(), run.ID, store.SeverityWarn, topMessagesLimit)
	errorRows, _ := s.Runs.ListImportRowResults(r.Context(), run.ID, store.SeverityError, topMessagesLimit)

	httpx.WriteJSON(w, http.StatusOK, mapImportRunResponse(
		run,
		parseImportSummary(run.SummaryJSON),
		mapRowResults(warnings),
		mapRowResults(errorRows),
		httpx.RequestIDFromContext(r.Context()),
	))
}

func (s *Server) GetImportsImportRunIdErrorsCsv(w http.ResponseWriter, r *http.Request, importRunID uuid.UUID) {
	if _, _, ok := requireActorID(w, r); !ok {
		return
	}

	if _, err := s.Runs.GetImportRun(r.Context(), importRunID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import run", nil)
		return
	}

	rows, err := s.Runs.ListImportRowResults(r.Context(), importRunID, "", 0)
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load import rows", nil)
		return
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"row_number", "severity", "result", "field", "message", "raw_value"})
	for _, row := range rows {
		if row.Severity != store.SeverityError && row.Severity != store.SeverityWarn {
			continue
		}
		_ = writer.Write([]string{
			strconv.Itoa(row.RowNumber),
			row.Severity,
			row.Result,
			derefString(row.Field),
			row.Message,
			derefString(row.RawValue),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to render import rows", nil)
		return
	}
	httpx.WriteAttachment(w, importer.ContentTypeCSV, "import-"+importRunID.String()+"-errors.csv", buf.Bytes())
}

func (s *Server) GetImportsTemplatesKind(w http.ResponseWriter, r *http.Request, kind string) {
	k, err := importer.ParseKind(kind)
	if err != nil {
		httpx.WriteError(w, r, http.StatusNotFound, "template_not_found", "Import template not found", nil)
		return
	}
	tpl, err := importer.Template(k, r.URL.Query().Get("format"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	httpx.WriteAttachment(w, tpl.ContentType, tpl.Filename, tpl.Data)
}

func parseImportUpload(r *http.Request, maxFileBytes int64) (parsedImportFile, *httpx.Error) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return parsedImportFile{}, &httpx.Error{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return parsedImportFile{}, &httpx.Error{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "file_too_large",
				Message: "Uploaded file is too large",
				Details: map[string]any{"maxBytes": maxErr.Limit},
			}
		}
		return parsedImportFile{}, &httpx.Error{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return parsedImportFile{}, &httpx.Error{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "file is required",
		}
	}
	defer file.Close()

	kind := importer.KindSales
	if raw := strings.TrimSpace(r.FormValue("kind")); raw != "" {
		kind, err = importer.ParseKind(raw)
		if err != nil {
			return parsedImportFile{}, &httpx.Error{
				Status:  http.StatusBadRequest,
				Code:    "validation_error",
				Message: "kind must be sales or stock",
			}
		}
	}

	if _, err := importer.CheckExtension(header.Filename); err != nil {
		return parsedImportFile{}, &httpx.Error{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file_type",
			Message: err.Error(),
			Details: map[string]any{"accepted": importer.AcceptedExtensions},
		}
	}

	if maxFileBytes > 0 && header.Size > maxFileBytes {
		return parsedImportFile{}, &httpx.Error{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "file_too_large",
			Message: "Uploaded file is too large",
			Details: map[string]any{"maxBytes": maxFileBytes},
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return parsedImportFile{}, &httpx.Error{
			Status:  http.StatusBadRequest,
			Code:    "invalid_file",
			Message: "Failed to read uploaded file",
		}
	}
	digest := sha256.Sum256(data)

	return parsedImportFile{
		filename:   header.Filename,
		fileSHA256: hex.EncodeToString(digest[:]),
		kind:       kind,
		data:       data,
	}, nil
}

// importErrorResponse maps a pipeline failure to the client-facing error.
func importErrorResponse(err error) *httpx.Error {
	var (
		formatErr *importer.UnsupportedFormatError
		schemaErr *importer.SchemaError
		decodeErr *importer.DecodeError
		limitErr  *importer.RowLimitError
	)
	switch {
	case errors.As(err, &formatErr):
		return &httpx.Error{Status: http.StatusBadRequest, Code: "invalid_file_type", Message: err.Error(),
			Details: map[string]any{"accepted": importer.AcceptedExtensions}}
	case errors.As(err, &schemaErr):
		return &httpx.Error{Status: http.StatusBadRequest, Code: "missing_columns", Message: err.Error(),
			Details: map[string]any{"missing": schemaErr.Missing, "kind": schemaErr.Kind}}
	case errors.As(err, &decodeErr):
		return &httpx.Error{Status: http.StatusBadRequest, Code: "decode_failed", Message: err.Error(),
			Details: map[string]any{}}
	case errors.As(err, &limitErr):
		return &httpx.Error{Status: http.StatusBadRequest, Code: "row_limit_exceeded", Message: err.Error(),
			Details: map[string]any{"maxRows": limitErr.Max, "rows": limitErr.Rows}}
	default:
		return &httpx.Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: "Import failed",
			Details: map[string]any{}}
	}
}

func summarizeOutcome(out importer.Outcome) importSummary {
	return importSummary{
		RowsTotal:  out.Total,
		Success:    out.Success,
		Duplicates: out.Duplicates,
		Existing:   out.Existing,
		Errors:     out.Errors,
		Warnings:   len(out.Warnings),
	}
}

// rowResults flattens everything worth reporting per row: coercion
// warnings, duplicates and rejected rows. Clean rows produce nothing.
func rowResults(out importer.Outcome) []store.ImportRowResult {
	results := make([]store.ImportRowResult, 0, len(out.Warnings)+len(out.DuplicateRows)+len(out.ExistingRows)+len(out.RowErrors))
	for _, w := range out.Warnings {
		results = append(results, store.ImportRowResult{
			RowNumber: w.RowNumber,
			Severity:  store.SeverityWarn,
			Result:    "coerced",
			Field:     stringPtrOrNil(w.Column),
			Message:   truncateText(w.Message, maxMessageLength),
			RawValue:  stringPtrOrNil(w.RawValue),
		})
	}
	for _, row := range out.DuplicateRows {
		results = append(results, store.ImportRowResult{
			RowNumber: row,
			Severity:  store.SeverityInfo,
			Result:    "duplicate",
			Message:   "same values as an earlier row of this file",
		})
	}
	for _, row := range out.ExistingRows {
		results = append(results, store.ImportRowResult{
			RowNumber: row,
			Severity:  store.SeverityInfo,
			Result:    "existing",
			Message:   "already imported",
		})
	}
	for _, e := range out.RowErrors {
		results = append(results, store.ImportRowResult{
			RowNumber: e.RowNumber,
			Severity:  store.SeverityError,
			Result:    "error",
			Message:   truncateText(e.Err.Error(), maxMessageLength),
			RawValue:  stringPtrOrNil(e.Product),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].RowNumber < results[j].RowNumber })
	return results
}

func mapRowResults(rows []store.ImportRowResult) []importRowMessage {
	items := make([]importRowMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, importRowMessage{
			RowNumber: row.RowNumber,
			Severity:  row.Severity,
			Result:    row.Result,
			Field:     row.Field,
			Message:   row.Message,
			RawValue:  row.RawValue,
		})
	}
	return items
}

func topMessagesBySeverity(messages []importRowMessage, severity string, limit int) []importRowMessage {
	filtered := make([]importRowMessage, 0, len(messages))
	for _, m := range messages {
		if m.Severity == severity {
			filtered = append(filtered, m)
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func mapImportRunResponse(run store.ImportRun, summary importSummary, topWarnings, topErrors []importRowMessage, requestID string) importRunResponse {
	response := importRunResponse{
		ImportRunID:  run.ID,
		Mode:         run.Mode,
		Kind:         run.Kind,
		Status:       run.Status,
		Filename:     run.Filename,
		FileSHA256:   run.FileSHA256,
		Summary:      summary,
		TopWarnings:  topWarnings,
		TopErrors:    topErrors,
		DownloadURLs: importDownloadURLs{ErrorsCSV: fmt.Sprintf("/api/imports/%s/errors.csv", run.ID.String())},
		CreatedAt:    run.CreatedAt.UTC(),
		RequestID:    requestID,
	}
	if run.CompletedAt != nil {
		completed := run.CompletedAt.UTC()
		response.CompletedAt = &completed
	}
	return response
}

func parseImportSummary(raw []byte) importSummary {
	summary := importSummary{}
	if len(raw) == 0 {
		return summary
	}
	_ = json.Unmarshal(raw, &summary)
	return summary
}
