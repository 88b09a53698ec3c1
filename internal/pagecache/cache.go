package pagecache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/xerrors"
)

const (
	DefaultTTL            = 5 * time.Minute
	DefaultComputeTimeout = 15 * time.Second
)

// Status describes how Get produced its value.
type Status int

const (
	// StatusMiss: this caller started the computation.
	StatusMiss Status = iota
	// StatusHit: served from a fresh entry.
	StatusHit
	// StatusShared: joined a computation another caller started.
	StatusShared
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusShared:
		return "shared"
	default:
		return "miss"
	}
}

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncCacheLookup(result string)
	IncCacheInvalidation(kind string, evicted int)
	SetCacheEntries(n int)
}

var ErrInvalidOptions = errors.New("pagecache: invalid options")

type Options struct {
	// TTL bounds how long an entry is served without invalidation.
	TTL time.Duration
	// ComputeTimeout bounds a computation. Computations are detached from
	// the caller that started them, so this is their only deadline.
	ComputeTimeout time.Duration
	Logger         log.Logger
	Metrics        Metrics
	// Now is the clock; tests replace it.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.TTL == 0 {
		o.TTL = DefaultTTL
	}
	if o.ComputeTimeout == 0 {
		o.ComputeTimeout = DefaultComputeTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func (o *Options) validate() error {
	if o.TTL < 0 {
		return fmt.Errorf("%w: TTL must be positive", ErrInvalidOptions)
	}
	if o.ComputeTimeout < 0 {
		return fmt.Errorf("%w: ComputeTimeout must be positive", ErrInvalidOptions)
	}
	return nil
}

// Entry is a stored value with its metadata.
type Entry[V any] struct {
	Value     V
	Path      string
	Tags      []string
	StoredAt  time.Time
	ExpiresAt time.Time
}

// flight is one running computation. Identity matters: a computation that
// was forgotten must not clear the record of the one that replaced it.
type flight struct {
	tags []string
}

// ComputeFunc builds the value for a path on a miss.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// Cache is safe for concurrent use.
type Cache[V any] struct {
	opts Options
	sf   singleflight.Group

	mu       sync.RWMutex
	entries  map[string]*Entry[V]
	byTag    map[string]map[string]struct{}
	lastGood map[string]*Entry[V]
	inflight map[string]*flight // path -> the computation singleflight hands out

	// Generations are bumped by invalidation. A computation records the
	// sum for its path and tags when it starts and is only stored if the
	// sum is unchanged when it finishes.
	pathGen map[string]uint64
	tagGen  map[string]uint64
}

func New[V any](opts Options) (*Cache[V], error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Cache[V]{
		opts:     opts,
		entries:  make(map[string]*Entry[V]),
		byTag:    make(map[string]map[string]struct{}),
		lastGood: make(map[string]*Entry[V]),
		inflight: make(map[string]*flight),
		pathGen:  make(map[string]uint64),
		tagGen:   make(map[string]uint64),
	}, nil
}

// Get returns the fresh entry for path or computes it. Concurrent misses for
// the same path share one computation. If ctx ends first Get returns
// ctx.Err(), and the computation still runs to completion and populates the
// cache. Errors are never cached.
func (c *Cache[V]) Get(ctx context.Context, path string, tags []string, compute ComputeFunc[V]) (V, Status, error) {
	if e, ok := c.Peek(path); ok {
		c.lookup(StatusHit)
		return e.Value, StatusHit, nil
	}

	tags = slices.Clone(tags)
	ch := c.sf.DoChan(path, func() (any, error) {
		return c.compute(ctx, path, tags, compute)
	})

	var zero V
	select {
	case <-ctx.Done():
		c.lookup(StatusMiss)
		return zero, StatusMiss, ctx.Err()
	case res := <-ch:
		st := StatusMiss
		if res.Shared {
			st = StatusShared
		}
		c.lookup(st)
		if res.Err != nil {
			return zero, st, res.Err
		}
		return res.Val.(V), st, nil
	}
}

func (c *Cache[V]) compute(ctx context.Context, path string, tags []string, compute ComputeFunc[V]) (v any, err error) {
	c.mu.Lock()
	gen := c.generationLocked(path, tags)
	own := &flight{tags: tags}
	c.inflight[path] = own
	c.mu.Unlock()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ComputeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Newf("pagecache: compute %s panicked: %v", path, r)
		}
		c.mu.Lock()
		if c.inflight[path] == own {
			delete(c.inflight, path)
		}
		c.mu.Unlock()
	}()

	val, err := compute(cctx)
	if err != nil {
		return nil, err
	}
	if !c.store(path, tags, val, gen) {
		c.opts.Logger.Debug(ctx, "page invalidated during computation; not stored", "path", path)
	}
	return val, nil
}

func (c *Cache[V]) generationLocked(path string, tags []string) uint64 {
	g := c.pathGen[path]
	for _, t := range tags {
		g += c.tagGen[t]
	}
	return g
}

func (c *Cache[V]) store(path string, tags []string, v V, gen uint64) bool {
	now := c.opts.Now()
	e := &Entry[V]{Value: v, Path: path, Tags: tags, StoredAt: now, ExpiresAt: now.Add(c.opts.TTL)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generationLocked(path, tags) != gen {
		if _, ok := c.lastGood[path]; !ok {
			c.lastGood[path] = e
		}
		return false
	}
	c.lastGood[path] = e
	c.removeLocked(path)
	c.entries[path] = e
	for _, t := range tags {
		set := c.byTag[t]
		if set == nil {
			set = make(map[string]struct{})
			c.byTag[t] = set
		}
		set[path] = struct{}{}
	}
	c.sweepLocked(now)
	c.gauge()
	return true
}

// sweepLocked drops expired entries so the map stays bounded by the set of
// live pages.
func (c *Cache[V]) sweepLocked(now time.Time) {
	for p, e := range c.entries {
		if !now.Before(e.ExpiresAt) {
			c.removeLocked(p)
		}
	}
}

func (c *Cache[V]) removeLocked(path string) bool {
	e, ok := c.entries[path]
	if !ok {
		return false
	}
	delete(c.entries, path)
	for _, t := range e.Tags {
		if set := c.byTag[t]; set != nil {
			delete(set, path)
			if len(set) == 0 {
				delete(c.byTag, t)
			}
		}
	}
	return true
}

// Peek returns the fresh entry for path without computing.
func (c *Cache[V]) Peek(path string) (Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	if !ok || !c.opts.Now().Before(e.ExpiresAt) {
		return Entry[V]{}, false
	}
	return *e, true
}

// LastGood returns the most recently stored value for path, even if it has
// since expired or been invalidated. It is meant for degraded serving only.
func (c *Cache[V]) LastGood(path string) (Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.lastGood[path]
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// InvalidatePath evicts the entry for path and reports how many entries
// were evicted (0 or 1). A computation for path already running is not
// stored and later callers start a new one. Invalidating an absent path is
// a no-op.
func (c *Cache[V]) InvalidatePath(path string) int {
	c.mu.Lock()
	c.pathGen[path]++
	n := 0
	if c.removeLocked(path) {
		n = 1
	}
	c.forgetLocked(path)
	c.gauge()
	c.mu.Unlock()

	if c.opts.Metrics != nil {
		c.opts.Metrics.IncCacheInvalidation("path", n)
	}
	return n
}

// forgetLocked detaches the running computation for path so the next caller
// starts a new one. The forgotten computation still finishes for the
// callers already waiting on it.
func (c *Cache[V]) forgetLocked(path string) {
	if _, ok := c.inflight[path]; ok {
		delete(c.inflight, path)
		c.sf.Forget(path)
	}
}

// InvalidateTag evicts every entry carrying tag and reports how many were
// evicted.
func (c *Cache[V]) InvalidateTag(tag string) int {
	c.mu.Lock()
	c.tagGen[tag]++
	n := 0
	for p := range c.byTag[tag] {
		if c.removeLocked(p) {
			n++
		}
	}
	for p, f := range c.inflight {
		if slices.Contains(f.tags, tag) {
			c.forgetLocked(p)
		}
	}
	c.gauge()
	c.mu.Unlock()

	if c.opts.Metrics != nil {
		c.opts.Metrics.IncCacheInvalidation("tag", n)
	}
	return n
}

// Len returns the number of stored entries, fresh or not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Paths returns the stored paths, sorted.
func (c *Cache[V]) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for p := range c.entries {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func (c *Cache[V]) lookup(st Status) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.IncCacheLookup(st.String())
	}
}

func (c *Cache[V]) gauge() {
	if c.opts.Metrics != nil {
		c.opts.Metrics.SetCacheEntries(len(c.entries))
	}
}
