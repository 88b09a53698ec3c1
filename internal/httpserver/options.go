package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onterra/onterra-web/internal/health"
	"github.com/onterra/onterra-web/internal/httpmw"
	"github.com/onterra/onterra-web/internal/log"
)

// DefaultPort is the public listener port when Options.Port is 0.
const DefaultPort = 8080

// DefaultMaxBodyBytes bounds request bodies; only revalidation webhooks send one.
const DefaultMaxBodyBytes = 64 << 10

// DefaultShutdownTimeout bounds graceful shutdown when the caller's
// context has no earlier deadline.
const DefaultShutdownTimeout = 5 * time.Second

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic, e.g. to bump a counter

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions
	Health       health.Probe
	Readiness    health.Probe
	ContentInfo  httpmw.ContentInfo // X-Content-Backend and X-Registry-Version headers

	// MaxBodyBytes caps request bodies; 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// ShutdownTimeout; 0 means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// APIRoutes registers explicit routes (page API, revalidation).
	APIRoutes func(chi.Router)
	// SiteHandler serves anything no explicit route matched.
	SiteHandler http.Handler
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// middleware lists the outer chain, outermost first. Nil entries are
// skipped by httpmw.Chain.
//
// Security headers land on every response including panics, the client IP
// is resolved before the rate limiter sees the request, and the request
// logger runs inside the server span so it can pick up the trace.
func (o *Options) middleware() []func(http.Handler) http.Handler {
	var recoverMW, contentMW func(http.Handler) http.Handler
	if o.UseRecoverMW {
		recoverMW = httpmw.Recover(o.Logger, o.OnPanic)
	}
	if o.ContentInfo != nil {
		contentMW = httpmw.ContentHeaders(o.ContentInfo)
	}
	return []func(http.Handler) http.Handler{
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		httpmw.ClientIP(o.ClientIPOpts),
		o.RateLimitMW,
		tracing,
		contentMW,
		httpmw.TraceIDHeaders("X-Trace-Id", "X-Span-Id"),
		o.MetricsMW,
		httpmw.WithLogger(o.Logger),
	}
}
