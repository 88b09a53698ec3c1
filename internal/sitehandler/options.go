package sitehandler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/pagecache"
	"github.com/onterra/onterra-web/internal/registry"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// Surfaces maps a concrete path to its registry surface.
type Surfaces interface {
	Match(path string) (s registry.Surface, slug string, ok bool)
}

// Composer builds the view-model of a surface pattern.
type Composer interface {
	Compose(ctx context.Context, pattern string, params content.Params) (compose.ViewModel, error)
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncDegraded(surface, mode string)
}

type Options struct {
	Logger   log.Logger
	Surfaces Surfaces
	Composer Composer
	Cache    *pagecache.Cache[Page]
	Metrics  Metrics

	// FallbackFS holds MaintenanceFile (required) and NotFoundFile (optional).
	FallbackFS      fs.FS
	MaintenanceFile string // default: "maintenance.json"
	NotFoundFile    string // default: "404.json"

	// Prefix is stripped from the request path before surface matching.
	Prefix string // default: "/api/pages"

	// CacheControl is sent with fresh view-models. Degraded and error
	// responses are always no-store.
	CacheControl string // default: "no-cache"

	// RetryAfter is the Retry-After value, in seconds, on maintenance responses.
	RetryAfter int // default: 60

	// Label wraps a composition with profiling labels; nil runs it directly.
	Label func(ctx context.Context, surface string, fn func(context.Context))
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.json"
	}
	if o.NotFoundFile == "" {
		o.NotFoundFile = "404.json"
	}
	if o.Prefix == "" {
		o.Prefix = "/api/pages"
	}
	if o.CacheControl == "" {
		o.CacheControl = "no-cache"
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = 60
	}
}

func (o *Options) validate() error {
	switch {
	case o.Surfaces == nil:
		return fmt.Errorf("%w: Surfaces is nil", ErrInvalidOptions)
	case o.Composer == nil:
		return fmt.Errorf("%w: Composer is nil", ErrInvalidOptions)
	case o.Cache == nil:
		return fmt.Errorf("%w: Cache is nil", ErrInvalidOptions)
	case o.FallbackFS == nil:
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	// fail fast on boot if mispackaged
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
