// Package opshttp serves the operational listener: probes, metrics, pprof
// and read-only views of the invalidation registry and the page cache.
// Every route is limited to loopback, private and link-local peers.
package opshttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"sync"
	"time"

	"github.com/onterra/onterra-web/internal/health"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/xerrors"
)

// DefaultPort is the admin port used when Options.Port is zero.
const DefaultPort = 9000

// Start listens on the admin port and returns an idempotent stop(ctx).
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	if opts == nil {
		opts = &Options{}
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(L, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// long enough for a 30s CPU profile
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen admin addr=%s", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr, "pprof", opts.EnablePprof)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	var stopErr error
	return func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}, nil
}

// Handler builds the admin routes behind the peer check.
func Handler(L log.Logger, opts *Options) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.HealthzHandler(opts.Health))
	mux.Handle("/readyz", health.ReadyzHandler(opts.Readiness))

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	if opts.Registry != nil {
		mux.Handle("GET /debug/registry", registryHandler(opts.Registry))
	}
	if opts.PageCache != nil {
		mux.Handle("GET /debug/pagecache", pageCacheHandler(opts.PageCache))
	}
	return privatePeersOnly(L, mux)
}

// privatePeersOnly rejects peers that are not loopback, private or
// link-local. Forwarded headers are ignored; only the socket peer counts.
func privatePeersOnly(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := peerDenied(r.RemoteAddr); reason != "" {
			L.Warn(r.Context(), "ops request denied",
				"reason", reason,
				"network.peer.address", r.RemoteAddr,
				"url.path", r.URL.Path,
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peerDenied returns why remote may not use the admin listener, or "".
func peerDenied(remote string) string {
	ap, err := netip.ParseAddrPort(remote)
	if err != nil {
		return "unparseable remote addr"
	}
	a := ap.Addr().Unmap()
	if a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() {
		return ""
	}
	return "public peer"
}
