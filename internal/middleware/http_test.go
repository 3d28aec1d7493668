package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/suivivente/apps/api/internal/httpx"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"caller id kept", "import-42.a_b", true},
		{"missing", "", false},
		{"unsafe characters", "abc\ndef", false},
		{"too long", strings.Repeat("a", maxRequestIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = httpx.RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-Id", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if seen == "" || rr.Header().Get("X-Request-Id") != seen {
				t.Fatalf("context id %q, header %q", seen, rr.Header().Get("X-Request-Id"))
			}
			if (seen == tt.header) != tt.keep {
				t.Fatalf("keep=%v but got %q", tt.keep, seen)
			}
		})
	}
}

func TestLoggingCarriesAddedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogFields(r.Context(), "import_kind", "sales", "user_id", "u1")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/imports/dry-run", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["msg"] != "http_request" || line["level"] != "WARN" {
		t.Fatalf("line: %v", line)
	}
	if line["import_kind"] != "sales" || line["user_id"] != "u1" || line["bytes"] != float64(12) {
		t.Fatalf("fields missing: %v", line)
	}

	// no-op without the middleware
	AddLogFields(context.Background(), "k", "v")
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders("production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/exports/sales.csv", nil))
	if rr.Header().Get("Cache-Control") != "no-store" || rr.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("api headers: %v", rr.Header())
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("Cache-Control") != "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("root headers: %v", rr.Header())
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://caisse.example.com/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name      string
		method    string
		origin    string
		preflight bool
		status    int
		allowed   bool
	}{
		{"allowed preflight", http.MethodOptions, "https://caisse.example.com", true, http.StatusNoContent, true},
		{"foreign preflight", http.MethodOptions, "https://evil.example.com", true, http.StatusForbidden, false},
		{"allowed download", http.MethodGet, "https://caisse.example.com", false, http.StatusOK, true},
		{"foreign download", http.MethodGet, "https://evil.example.com", false, http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/exports/sales.csv", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			got := rr.Header().Get("Access-Control-Allow-Origin") == tt.origin
			if got != tt.allowed {
				t.Fatalf("allow origin header %q", rr.Header().Get("Access-Control-Allow-Origin"))
			}
			if tt.allowed && !strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition") {
				t.Fatalf("expose headers: %q", rr.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}
