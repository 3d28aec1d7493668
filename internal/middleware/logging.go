package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/suivivente/apps/api/internal/httpx"
)

type logFields struct {
	mu    sync.Mutex
	attrs []any
}

// AddLogFields attaches key/value pairs to the http_request line of the
// current request. Outside Logging it does nothing.
func AddLogFields(ctx context.Context, args ...any) {
	f, ok := ctx.Value(logFieldsKey).(*logFields)
	if !ok {
		return
	}
	f.mu.Lock()
	f.attrs = append(f.attrs, args...)
	f.mu.Unlock()
}

// Logging writes one http_request line per request. Server errors log at
// error level and client errors at warn, so rejected uploads stand out.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := &logFields{}
			ctx := context.WithValue(r.Context(), logFieldsKey, fields)
			ww := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case ww.status >= 500:
				level = slog.LevelError
			case ww.status >= 400:
				level = slog.LevelWarn
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"bytes", ww.written,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", httpx.RequestIDFromContext(ctx),
			}
			if r.ContentLength > 0 {
				args = append(args, "request_bytes", r.ContentLength)
			}
			fields.mu.Lock()
			args = append(args, fields.attrs...)
			fields.mu.Unlock()
			logger.Log(ctx, level, "http_request", args...)
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}
