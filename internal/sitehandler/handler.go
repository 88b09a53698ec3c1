package sitehandler

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/log"
)

// Degraded response modes, used as the metrics label.
const (
	ModeStale       = "stale"
	ModeMaintenance = "maintenance"
)

var (
	defaultNotFound    = []byte(`{"message":"Page not found"}`)
	methodNotAllowed   = []byte(`{"message":"Method not allowed"}`)
	maintenanceUnknown = []byte(`{"message":"Service unavailable"}`)
)

type Handler struct {
	opts        Options
	maintenance []byte
	notFound    []byte
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	h := &Handler{opts: opts, maintenance: maintenanceUnknown, notFound: defaultNotFound}
	if b, err := fs.ReadFile(opts.FallbackFS, opts.MaintenanceFile); err == nil {
		h.maintenance = b
	}
	// fallback 404 is optional
	if b, err := fs.ReadFile(opts.FallbackFS, opts.NotFoundFile); err == nil {
		h.notFound = b
	} else {
		opts.Logger.Warn(context.Background(), "fallback not-found document missing, using built-in", "file", opts.NotFoundFile)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// hardening: only allow GET/HEAD
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeBody(w, r, http.StatusMethodNotAllowed, "no-store", methodNotAllowed)
		return
	}

	p, redirectTo, ok := pagePath(r.URL.Path, h.opts.Prefix)
	if redirectTo != "" {
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !ok {
		h.serveNotFound(w, r)
		return
	}
	surface, slug, ok := h.opts.Surfaces.Match(p)
	if !ok {
		h.serveNotFound(w, r)
		return
	}

	ctx := r.Context()
	var params content.Params
	if slug != "" {
		params = content.Params{content.ParamSlug: slug}
	}

	page, status, err := h.opts.Cache.Get(ctx, p, surface.Tags, func(ctx context.Context) (Page, error) {
		return h.compose(ctx, surface.Path, params)
	})
	if err != nil {
		h.serveError(w, r, p, surface.Path, err)
		return
	}

	w.Header().Set("ETag", page.ETag)
	w.Header().Set("X-Cache", status.String())
	if notModified(w, r, page.ETag) {
		return
	}
	writeBody(w, r, http.StatusOK, h.opts.CacheControl, page.Body)
}

func (h *Handler) compose(ctx context.Context, pattern string, params content.Params) (page Page, err error) {
	run := func(ctx context.Context) {
		var vm compose.ViewModel
		vm, err = h.opts.Composer.Compose(ctx, pattern, params)
		if err == nil {
			page, err = newPage(pattern, vm)
		}
	}
	if h.opts.Label != nil {
		h.opts.Label(ctx, pattern, run)
	} else {
		run(ctx)
	}
	return page, err
}

func (h *Handler) serveError(w http.ResponseWriter, r *http.Request, path, pattern string, err error) {
	ctx := r.Context()
	L := log.FromContextOr(ctx, h.opts.Logger)

	switch {
	case errors.Is(err, compose.ErrNotFound):
		h.serveNotFound(w, r)
		return
	case ctx.Err() != nil:
		// client went away; the computation carries on for the next caller
		L.Debug(ctx, "page request abandoned", "surface", pattern, "reason", ctx.Err().Error())
		return
	}

	if last, ok := h.opts.Cache.LastGood(path); ok {
		L.Error(ctx, err, "page composition failed, serving last good copy",
			"surface", pattern,
			"stored_at", last.StoredAt,
		)
		h.degraded(pattern, ModeStale)
		w.Header().Set("X-Content-Degraded", ModeStale)
		writeBody(w, r, http.StatusOK, "no-store", last.Value.Body)
		return
	}

	L.Error(ctx, err, "page composition failed, serving maintenance", "surface", pattern)
	h.degraded(pattern, ModeMaintenance)
	w.Header().Set("Retry-After", strconv.Itoa(h.opts.RetryAfter))
	w.Header().Set("X-Content-Degraded", ModeMaintenance)
	writeBody(w, r, http.StatusServiceUnavailable, "no-store", h.maintenance)
}

func (h *Handler) serveNotFound(w http.ResponseWriter, r *http.Request) {
	writeBody(w, r, http.StatusNotFound, "no-store", h.notFound)
}

func (h *Handler) degraded(surface, mode string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.IncDegraded(surface, mode)
	}
}

func writeBody(w http.ResponseWriter, r *http.Request, status int, cacheControl string, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}
