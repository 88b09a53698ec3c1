// Package httpserver assembles the public listener: the middleware chain,
// the chi router and the *http.Server lifecycle.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/onterra/onterra-web/internal/health"
	"github.com/onterra/onterra-web/internal/httpmw"
	"github.com/onterra/onterra-web/internal/xerrors"
)

const (
	healthPath = "/-/healthy"
	readyPath  = "/-/ready"
)

// Server timeout defaults. WriteTimeout leaves room for a cold page
// composition (pagecache.DefaultComputeTimeout) plus the write itself.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

// tracing starts the server span. Probes are not traced; RouteSpan renames
// the span once chi has matched.
func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != healthPath && r.URL.Path != readyPath }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method + " " + r.URL.Path }),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
}

func router(opts *Options) chi.Router {
	r := chi.NewRouter()
	// view-models are JSON and compress well
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.RouteSpan, httpmw.AccessLog(), httpmw.MaxBody(opts.MaxBodyBytes))

	if opts.Health != nil {
		r.Get(healthPath, health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get(readyPath, health.ReadyzHandler(opts.Readiness))
	}
	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}
	if h := opts.SiteHandler; h != nil {
		r.NotFound(h.ServeHTTP)
		r.MethodNotAllowed(h.ServeHTTP)
	}
	return r
}

// NewHandler builds the public router wrapped in the middleware stack.
func NewHandler(opts Options) http.Handler {
	opts.setDefaults()
	return httpmw.Chain(router(&opts), opts.middleware()...)
}

// NewServer applies the default timeouts to handler.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start binds the public listener and serves in the background. The
// returned stop is safe to call more than once.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	opts.setDefaults()
	L := opts.Logger
	addr := ":" + strconv.Itoa(opts.Port)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen public addr=%s", addr)
	}
	srv := NewServer(addr, NewHandler(opts))

	served := make(chan struct{})
	go func() {
		defer close(served)
		L.Info(ctx, "http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "http server error")
		}
	}()

	var (
		once    sync.Once
		stopErr error
	)
	return func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, opts.ShutdownTimeout)
			defer cancel()
			stopErr = srv.Shutdown(c)
			if stopErr == nil {
				<-served
			}
		})
		return stopErr
	}, nil
}
