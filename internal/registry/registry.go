// Package registry is the single static table translating "this content type
// changed" into "these surfaces and cache tags are now stale".
//
// The table lives in table.yaml, is embedded at build time and is loaded once.
// There is no mutation API.
package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/cryptoutil"
)

//go:embed table.yaml
var defaultTable []byte

// ErrInvalidTable wraps every load-time validation failure.
var ErrInvalidTable = errors.New("registry: invalid table")

// SlugParam is the only placeholder a parametric surface may carry.
const SlugParam = "{slug}"

var slugRE = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool { return len(s) <= 128 && slugRE.MatchString(s) }

// Surface is a page path whose content depends on store documents.
type Surface struct {
	Path string   `yaml:"path" json:"path"`
	Tags []string `yaml:"tags" json:"tags"`
}

// Parametric reports whether the surface needs a slug to resolve.
func (s Surface) Parametric() bool { return strings.Contains(s.Path, SlugParam) }

// Instance substitutes slug into a parametric path.
func (s Surface) Instance(slug string) string {
	return strings.Replace(s.Path, SlugParam, slug, 1)
}

// Entry is the table row for one content type.
type Entry struct {
	Surfaces     []string `yaml:"surfaces,omitempty" json:"surfaces,omitempty"`
	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	SlugTags     []string `yaml:"slugTags,omitempty" json:"slugTags,omitempty"`
	RequiresSlug bool     `yaml:"requiresSlug,omitempty" json:"requiresSlug,omitempty"`
}

// Table is the serialized form of the registry.
type Table struct {
	Surfaces []Surface        `yaml:"surfaces" json:"surfaces"`
	Entries  map[string]Entry `yaml:"entries" json:"entries"`
}

// Registry is an immutable, validated Table.
type Registry struct {
	table    Table
	surfaces map[string]Surface
	entries  map[cms.ContentType]Entry
	allPaths []string
	allTags  []string
	version  string
}

var loadDefault = sync.OnceValues(func() (*Registry, error) { return Load(defaultTable) })

// Default returns the registry built from the embedded table.
func Default() (*Registry, error) { return loadDefault() }

// Load parses and validates a table.
func Load(b []byte) (*Registry, error) {
	var t Table
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	r, err := build(t)
	if err != nil {
		return nil, err
	}
	r.version = cryptoutil.Fingerprint(b, 12)
	return r, nil
}

func build(t Table) (*Registry, error) {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	r := &Registry{
		table:    t,
		surfaces: make(map[string]Surface, len(t.Surfaces)),
		entries:  make(map[cms.ContentType]Entry, len(t.Entries)),
	}
	tagged := map[string][]Surface{}
	for _, s := range t.Surfaces {
		switch {
		case !strings.HasPrefix(s.Path, "/"):
			bad("surface %q: path must start with /", s.Path)
		case strings.Count(s.Path, "{") != strings.Count(s.Path, SlugParam) || strings.Count(s.Path, SlugParam) > 1:
			bad("surface %q: only a single %s placeholder is supported", s.Path, SlugParam)
		case len(s.Tags) == 0:
			bad("surface %q: at least one tag is required", s.Path)
		}
		if _, dup := r.surfaces[s.Path]; dup {
			bad("surface %q declared twice", s.Path)
		}
		r.surfaces[s.Path] = s
		if !s.Parametric() {
			r.allPaths = append(r.allPaths, s.Path)
		}
		for _, tag := range s.Tags {
			if !slices.Contains(r.allTags, tag) {
				r.allTags = append(r.allTags, tag)
			}
			tagged[tag] = append(tagged[tag], s)
		}
	}

	for name, e := range t.Entries {
		ct, err := cms.ParseContentType(name)
		if err != nil {
			bad("entry %q: %v", name, err)
			continue
		}
		hasParam := false
		for _, p := range e.Surfaces {
			s, ok := r.surfaces[p]
			if !ok {
				bad("entry %s: unknown surface %q", ct, p)
				continue
			}
			if s.Parametric() {
				hasParam = true
				if !e.RequiresSlug {
					bad("entry %s: parametric surface %q needs requiresSlug", ct, p)
				}
			}
		}
		for _, tag := range slices.Concat(e.Tags, e.SlugTags) {
			if len(tagged[tag]) == 0 {
				bad("entry %s: tag %q is not attached to any surface", ct, tag)
			}
		}
		if e.RequiresSlug {
			if !hasParam {
				bad("entry %s: requiresSlug without a parametric surface", ct)
			}
			if len(e.Tags) == 0 {
				bad("entry %s: requiresSlug needs an umbrella tag", ct)
			}
			// the umbrella must cover every parametric surface of the entry
			for _, p := range e.Surfaces {
				if s := r.surfaces[p]; s.Parametric() && !coversAny(s, e.Tags) {
					bad("entry %s: umbrella tags %v do not cover %q", ct, e.Tags, p)
				}
			}
		} else {
			if len(e.SlugTags) > 0 {
				bad("entry %s: slugTags without requiresSlug", ct)
			}
			if len(e.Surfaces) == 0 && len(e.Tags) == 0 {
				bad("entry %s: resolves to nothing", ct)
			}
		}
		r.entries[ct] = e
	}

	for _, ct := range cms.AllContentTypes() {
		if _, ok := r.entries[ct]; !ok {
			bad("content type %s has no entry", ct)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	slices.Sort(r.allPaths)
	slices.Sort(r.allTags)
	return r, nil
}

func coversAny(s Surface, tags []string) bool {
	for _, t := range tags {
		if slices.Contains(s.Tags, t) {
			return true
		}
	}
	return false
}

// Version is a short hash of the loaded table.
func (r *Registry) Version() string { return r.version }

// Table returns a copy of the loaded table.
func (r *Registry) Table() Table {
	t := Table{Surfaces: make([]Surface, 0, len(r.table.Surfaces)), Entries: make(map[string]Entry, len(r.table.Entries))}
	for _, s := range r.table.Surfaces {
		t.Surfaces = append(t.Surfaces, Surface{Path: s.Path, Tags: slices.Clone(s.Tags)})
	}
	for k, e := range r.table.Entries {
		t.Entries[k] = Entry{
			Surfaces:     slices.Clone(e.Surfaces),
			Tags:         slices.Clone(e.Tags),
			SlugTags:     slices.Clone(e.SlugTags),
			RequiresSlug: e.RequiresSlug,
		}
	}
	return t
}

// Surfaces returns every declared surface, static and parametric, in table order.
func (r *Registry) Surfaces() []Surface {
	return r.Table().Surfaces
}

// Surface returns the declared surface with the given path pattern.
func (r *Registry) Surface(pattern string) (Surface, bool) {
	s, ok := r.surfaces[pattern]
	if !ok {
		return Surface{}, false
	}
	return Surface{Path: s.Path, Tags: slices.Clone(s.Tags)}, true
}

// StaticPaths returns every non-parametric surface path, sorted.
func (r *Registry) StaticPaths() []string { return slices.Clone(r.allPaths) }

// Tags returns every tag attached to a surface, sorted.
func (r *Registry) Tags() []string { return slices.Clone(r.allTags) }

// Entry returns the table row for ct.
func (r *Registry) Entry(ct cms.ContentType) (Entry, bool) {
	e, ok := r.entries[ct]
	return e, ok
}

// Match maps a concrete request path to its surface. For parametric
// surfaces the slug is returned; it is already validated.
func (r *Registry) Match(path string) (s Surface, slug string, ok bool) {
	if s, ok := r.surfaces[path]; ok && !s.Parametric() {
		return s, "", true
	}
	for _, s := range r.table.Surfaces {
		if !s.Parametric() {
			continue
		}
		prefix, suffix, _ := strings.Cut(s.Path, SlugParam)
		if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) || len(path) < len(prefix)+len(suffix) {
			continue
		}
		cand := path[len(prefix) : len(path)-len(suffix)]
		if ValidSlug(cand) {
			return s, cand, true
		}
	}
	return Surface{}, "", false
}
