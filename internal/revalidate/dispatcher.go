package revalidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/cryptoutil"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/registry"
	"github.com/onterra/onterra-web/internal/xerrors"
)

// Invalidator evicts cached surfaces. Both operations are idempotent and
// report how many entries they evicted.
type Invalidator interface {
	InvalidatePath(path string) int
	InvalidateTag(tag string) int
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncRevalidation(outcome, branch string)
}

var ErrInvalidOptions = errors.New("revalidate: invalid options")

type Options struct {
	Registry    *registry.Registry
	Invalidator Invalidator
	// Secret is the shared webhook secret. When empty every request is
	// rejected.
	Secret  string
	Logger  log.Logger
	Metrics Metrics
	Now     func() time.Time
	// MaxBodyBytes caps the webhook request body. Default 64 KiB.
	MaxBodyBytes int64
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MaxBodyBytes == 0 {
		o.MaxBodyBytes = 64 << 10
	}
}

func (o *Options) validate() error {
	if o.Registry == nil {
		return fmt.Errorf("%w: Registry is nil", ErrInvalidOptions)
	}
	if o.Invalidator == nil {
		return fmt.Errorf("%w: Invalidator is nil", ErrInvalidOptions)
	}
	if o.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: MaxBodyBytes must be positive", ErrInvalidOptions)
	}
	return nil
}

type Dispatcher struct {
	reg     *registry.Registry
	inv     Invalidator
	secret  cryptoutil.SecretDigest
	logger  log.Logger
	metrics Metrics
	now     func() time.Time
	maxBody int64
}

func New(opts Options) (*Dispatcher, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		reg:     opts.Registry,
		inv:     opts.Invalidator,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		maxBody: opts.MaxBodyBytes,
		secret:  cryptoutil.NewSecretDigest(opts.Secret),
	}
	if opts.Secret == "" {
		opts.Logger.Warn(context.Background(), "revalidate secret is not configured; all webhook requests will be rejected")
	}
	return d, nil
}

// Authenticate compares the presented secret with the configured one in
// constant time, without revealing its length.
func (d *Dispatcher) Authenticate(presented string) bool {
	return d.secret.Matches(presented)
}

// Result describes one completed revalidation.
type Result struct {
	Resolution   registry.Resolution
	PathsEvicted int
	TagsEvicted  int
}

// Branch labels the registry branch a resolution took.
func (r Result) Branch() string { return branch(r.Resolution) }

func branch(res registry.Resolution) string {
	switch {
	case res.Kind == registry.KindConservative:
		return "conservative"
	case res.Family:
		return "family"
	default:
		return "specific"
	}
}

// Revalidate resolves a change and issues one invalidation per surface and
// per tag. It is safe to repeat: the same input always issues the same
// invalidations. Callers must authenticate first.
func (d *Dispatcher) Revalidate(ctx context.Context, contentType, slug string) (res Result, err error) {
	contentType = strings.TrimSpace(contentType)
	slug = strings.TrimSpace(slug)

	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Newf("revalidate %s: invalidation panicked: %v", contentType, r)
		}
	}()

	res.Resolution = d.reg.Resolve(contentType, slug)
	if res.Resolution.Empty() {
		return res, xerrors.Newf("revalidate %s: registry resolved to nothing", contentType)
	}

	if res.Resolution.Kind == registry.KindConservative {
		d.logger.Info(ctx, "unrecognized content type; invalidating every surface",
			"type", contentType,
			"surfaces", len(res.Resolution.Surfaces),
			"tags", len(res.Resolution.Tags),
		)
	}

	for _, p := range res.Resolution.Surfaces {
		res.PathsEvicted += d.inv.InvalidatePath(p)
	}
	for _, t := range res.Resolution.Tags {
		res.TagsEvicted += d.inv.InvalidateTag(t)
	}

	d.logger.Debug(ctx, "revalidated",
		"type", contentType,
		"slug", slug,
		"branch", res.Branch(),
		"surfaces", res.Resolution.Surfaces,
		"tags", res.Resolution.Tags,
		"paths_evicted", res.PathsEvicted,
		"tags_evicted", res.TagsEvicted,
	)
	return res, nil
}

// OnChanges revalidates every distinct (type, slug) in changes. It matches
// the watcher's OnChange callback.
func (d *Dispatcher) OnChanges(ctx context.Context, changes []content.Change) {
	type key struct{ t, slug string }
	seen := make(map[key]bool, len(changes))
	for _, c := range changes {
		k := key{string(c.Type), c.Slug}
		if seen[k] {
			continue
		}
		seen[k] = true
		res, err := d.Revalidate(ctx, k.t, k.slug)
		if err != nil {
			d.logger.Error(ctx, err, "revalidate on store change failed", "type", k.t, "slug", k.slug)
			d.observe("error", "none")
			continue
		}
		d.observe("ok", res.Branch())
	}
}

func (d *Dispatcher) observe(outcome, branch string) {
	if d.metrics != nil {
		d.metrics.IncRevalidation(outcome, branch)
	}
}
