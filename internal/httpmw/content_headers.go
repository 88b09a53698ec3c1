package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ContentInfo describes the content wiring behind every response.
type ContentInfo interface {
	ContentBackend() string  // sanity, s3 or fs
	RegistryVersion() string // fingerprint of the invalidation table
}

// ContentHeaders stamps X-Content-Backend and X-Registry-Version on every
// response and the same values on the server span. Both are fixed for the
// life of the process, so they are read once.
func ContentHeaders(info ContentInfo) func(http.Handler) http.Handler {
	var headers [][2]string
	var attrs []attribute.KeyValue
	if info != nil {
		if b := info.ContentBackend(); b != "" {
			headers = append(headers, [2]string{"X-Content-Backend", b})
			attrs = append(attrs, attribute.String("content.backend", b))
		}
		if v := info.RegistryVersion(); v != "" {
			v = v[:min(len(v), 12)]
			headers = append(headers, [2]string{"X-Registry-Version", v})
			attrs = append(attrs, attribute.String("registry.version", v))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range headers {
				w.Header().Set(h[0], h[1])
			}
			if span := trace.SpanFromContext(r.Context()); span.IsRecording() && len(attrs) > 0 {
				span.SetAttributes(attrs...)
			}
			next.ServeHTTP(w, r)
		})
	}
}
