package middleware

import (
	"mime"
	"net/http"
	"strings"
)

// BodyLimits caps request bodies. Multipart uploads to one of UploadPaths get
// the Upload ceiling; every other request gets Default. Zero disables a cap.
type BodyLimits struct {
	Default     int64
	Upload      int64
	UploadPaths []string
}

func (l BodyLimits) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if maxBytes := l.limitFor(r); maxBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (l BodyLimits) limitFor(r *http.Request) int64 {
	if !isMultipart(r) {
		return l.Default
	}
	path := strings.TrimPrefix(r.URL.Path, "/api")
	for _, prefix := range l.UploadPaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return l.Upload
		}
	}
	return l.Default
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
