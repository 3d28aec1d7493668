package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimits(t *testing.T) {
	handler := BodyLimits{Default: 2, Upload: 10, UploadPaths: []string{"/imports/"}}.Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := io.ReadAll(r.Body); err != nil {
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		status      int
	}{
		{"upload under ceiling", "/api/imports/dry-run", "multipart/form-data; boundary=x", "12345", http.StatusOK},
		{"upload over ceiling", "/api/imports/apply", "multipart/form-data; boundary=x", "12345678901", http.StatusRequestEntityTooLarge},
		{"json to upload path", "/api/imports/dry-run", "application/json", "12345", http.StatusRequestEntityTooLarge},
		{"multipart elsewhere", "/api/auth/login", "multipart/form-data; boundary=x", "12345", http.StatusRequestEntityTooLarge},
		{"small json", "/api/auth/login", "application/json", "{}", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
		})
	}
}
