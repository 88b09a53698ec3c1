package httpmw

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onterra/onterra-web/internal/log"
)

// recorder captures what the access log needs from a response. The first
// header or body write opens a response.write child span that measures time
// spent blocked on the client.
type recorder struct {
	http.ResponseWriter
	ctx   context.Context
	start time.Time

	status  int
	bytes   int64
	blocked time.Duration
	err     error

	span    trace.Span
	started bool
}

func (rec *recorder) begin() {
	if rec.started {
		return
	}
	rec.started = true
	if !trace.SpanFromContext(rec.ctx).IsRecording() {
		return
	}
	_, rec.span = otel.Tracer("onterra/httpmw").Start(rec.ctx, "response.write",
		trace.WithAttributes(attribute.Float64("http.server.ttfb_seconds", time.Since(rec.start).Seconds())))
}

func (rec *recorder) end() {
	if rec.span == nil {
		return
	}
	rec.span.SetAttributes(
		attribute.Int("http.response.status_code", rec.statusCode()),
		attribute.Int64("http.response.body.size", rec.bytes),
		attribute.Float64("http.server.write.block_seconds", rec.blocked.Seconds()),
	)
	if rec.err != nil {
		rec.span.RecordError(rec.err)
		rec.span.SetStatus(codes.Error, "response write failed")
	}
	rec.span.End()
}

func (rec *recorder) statusCode() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

func (rec *recorder) WriteHeader(code int) {
	rec.begin()
	if rec.status == 0 {
		rec.status = code
	}
	t := time.Now()
	rec.ResponseWriter.WriteHeader(code)
	rec.blocked += time.Since(t)
}

func (rec *recorder) Write(b []byte) (int, error) {
	rec.begin()
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	t := time.Now()
	n, err := rec.ResponseWriter.Write(b)
	rec.blocked += time.Since(t)
	rec.bytes += int64(n)
	if err != nil && rec.err == nil {
		rec.err = err
	}
	return n, err
}

func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rec *recorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// WithLogger stores a request-scoped logger carrying the request ID, the
// resolved client address, method, path and scheme. Query strings, the Host
// header, cookies and user-agent are never attached.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := RequestIDFromContext(ctx)
			client := ClientIPFromContext(ctx)
			scheme := requestScheme(r)

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("request_id", reqID),
					attribute.String("client.address", client),
					attribute.String("url.scheme", scheme),
				)
			}

			L := base.With(
				"request_id", reqID,
				"client.address", client,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
				"url.scheme", scheme,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLog writes one line per request after the handler returns, using the
// request-scoped logger installed by WithLogger. Health probes are skipped.
// Page cache and degradation headers set by the page handler are copied into
// the line; 5xx responses log at warn.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &recorder{ResponseWriter: w, ctx: r.Context(), start: time.Now()}
			next.ServeHTTP(rec, r)
			rec.end()

			if isProbePath(r.URL.Path) {
				return
			}
			ctx := r.Context()
			L := log.FromContext(ctx)

			status := rec.statusCode()
			fields := []any{
				"http.route", routePattern(r),
				"http.response.status_code", status,
				"http.response.body.size", rec.bytes,
				"http.server.request.duration", time.Since(rec.start).Seconds(),
			}
			if r.ContentLength > 0 {
				fields = append(fields, "http.request.body.size", r.ContentLength)
			}
			if v := rec.Header().Get("X-Cache"); v != "" {
				fields = append(fields, "page.cache", v)
			}
			if v := rec.Header().Get("X-Content-Degraded"); v != "" {
				fields = append(fields, "page.degraded", v)
			}
			if status >= http.StatusInternalServerError {
				L.Warn(ctx, "http request", fields...)
				return
			}
			L.Info(ctx, "http request", fields...)
		})
	}
}

func isProbePath(p string) bool { return p == "/-/healthy" || p == "/-/ready" }

// requestScheme trusts X-Forwarded-Proto only after ClientIP has had the
// chance to strip it from untrusted peers.
func requestScheme(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-Proto"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		switch s := strings.ToLower(strings.TrimSpace(first)); s {
		case "http", "https":
			return s
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
