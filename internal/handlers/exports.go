package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/suivivente/apps/api/internal/audit"
	"github.com/suivivente/apps/api/internal/httpx"
	"github.com/suivivente/apps/api/internal/middleware"
	"github.com/suivivente/apps/api/internal/store"
)

const exportDateLayout = "2006-01-02"

func (s *Server) GetExportsSalesCsv(w http.ResponseWriter, r *http.Request) {
	var filter store.SalesFilter
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(exportDateLayout, raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", p.name+" must be a YYYY-MM-DD date", nil)
			return
		}
		*p.dst = parsed
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "to must not be before from", nil)
		return
	}

	s.writeExportCSV(w, r, "sales", "sales.csv", func(writer *csv.Writer) error {
		rows, err := s.Store.ListSales(r.Context(), filter)
		if err != nil {
			return err
		}
		_ = writer.Write([]string{"id", "date", "register", "product", "category", "subcategory", "quantity", "price", "total", "seller", "created_at"})
		for _, row := range rows {
			_ = writer.Write([]string{
				row.ID,
				row.Date.Format(exportDateLayout),
				row.Register,
				row.Product,
				row.Category,
				row.Subcategory,
				strconv.Itoa(row.Quantity),
				row.Price.StringFixed(2),
				row.Total.StringFixed(2),
				row.Seller,
				row.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return nil
	})
}

func (s *Server) GetExportsProductsCsv(w http.ResponseWriter, r *http.Request) {
	s.writeExportCSV(w, r, "products", "products.csv", func(writer *csv.Writer) error {
		rows, err := s.Store.ListProducts(r.Context())
		if err != nil {
			return err
		}
		_ = writer.Write([]string{"id", "name", "category", "subcategory", "initial_stock", "current_stock", "price", "threshold", "low_stock", "updated_at"})
		for _, p := range rows {
			_ = writer.Write([]string{
				p.ID,
				p.Name,
				p.Category,
				p.Subcategory,
				strconv.Itoa(p.InitialStock),
				strconv.Itoa(p.CurrentStock),
				p.Price.StringFixed(2),
				strconv.Itoa(p.Threshold),
				strconv.FormatBool(p.LowStock()),
				p.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		return nil
	})
}

// writeExportCSV renders the whole file before writing the response so a
// query failure still produces a JSON error.
func (s *Server) writeExportCSV(w http.ResponseWriter, r *http.Request, entityType, filename string, writerFunc func(writer *csv.Writer) error) {
	_, userID, ok := requireActorID(w, r)
	if !ok {
		return
	}
	middleware.AddLogFields(r.Context(), "export_entity", entityType)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writerFunc(writer); err != nil {
		s.Logger.ErrorContext(r.Context(), "export_failed", "entity", entityType, "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate export CSV", nil)
		return
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to generate export CSV", nil)
		return
	}

	httpx.WriteAttachment(w, "text/csv; charset=utf-8", filename, buf.Bytes())

	_ = s.Audit.Log(r.Context(), audit.Entry{
		UserID:     &userID,
		Action:     "export_data",
		Details:    fmt.Sprintf("Exported %s as CSV", entityType),
		EntityType: entityType,
		RequestID:  httpx.RequestIDFromContext(r.Context()),
		Metadata: map[string]any{
			"filename": filename,
			"entity":   entityType,
		},
	})
}
