// Package httpx holds the response helpers shared by middleware and handlers:
// the error envelope, JSON bodies and file downloads.
package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error is a failure already shaped for the client.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorEnvelope{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// WriteAppError writes e, omitting details when there are none.
func WriteAppError(w http.ResponseWriter, r *http.Request, e *Error) {
	var details any
	if len(e.Details) > 0 {
		details = e.Details
	}
	WriteError(w, r, e.Status, e.Code, e.Message, details)
}

// WriteRateLimited answers 429 with a Retry-After rounded up to the second.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, message string, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", message, map[string]any{"retryAfterSeconds": seconds})
}
