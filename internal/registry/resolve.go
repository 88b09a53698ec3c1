package registry

import (
	"slices"

	"github.com/onterra/onterra-web/internal/cms"
)

// Kind tags which branch of Resolve produced a Resolution.
type Kind int

const (
	// KindSpecific is a table hit.
	KindSpecific Kind = iota
	// KindConservative is the fallback for an unknown content type: every
	// static surface and every tag.
	KindConservative
)

func (k Kind) String() string {
	if k == KindConservative {
		return "conservative"
	}
	return "specific"
}

// Resolution is the set of surface instances and tags made stale by a change.
type Resolution struct {
	Kind     Kind
	Type     string
	Slug     string
	Surfaces []string
	Tags     []string
	// Family is set when a requiresSlug type was resolved without a slug.
	Family bool
}

// Empty reports whether the resolution invalidates nothing.
func (r Resolution) Empty() bool { return len(r.Surfaces) == 0 && len(r.Tags) == 0 }

// Resolve maps a change notification to the stale surfaces and tags.
//
//  1. unknown type: Conservative (all static surfaces, all tags)
//  2. requiresSlug with a slug: the single parametric instance plus slugTags
//  3. requiresSlug without a slug: the family umbrella tags, never a guessed path
//  4. otherwise: the entry's surfaces and tags verbatim
//
// A malformed slug is treated as absent.
func (r *Registry) Resolve(contentType, slug string) Resolution {
	ct, err := cms.ParseContentType(contentType)
	e, ok := r.entries[ct]
	if err != nil || !ok {
		res := Resolution{
			Kind:     KindConservative,
			Type:     contentType,
			Surfaces: slices.Clone(r.allPaths),
			Tags:     slices.Clone(r.allTags),
		}
		if ValidSlug(slug) {
			res.Slug = slug
		}
		return res
	}

	res := Resolution{Kind: KindSpecific, Type: contentType}
	if !e.RequiresSlug {
		res.Surfaces = slices.Clone(e.Surfaces)
		res.Tags = slices.Clone(e.Tags)
		return res
	}

	if slug != "" && ValidSlug(slug) {
		res.Slug = slug
		for _, p := range e.Surfaces {
			if s := r.surfaces[p]; s.Parametric() {
				res.Surfaces = append(res.Surfaces, s.Instance(slug))
			}
		}
		res.Tags = slices.Clone(e.SlugTags)
		return res
	}

	res.Family = true
	for _, p := range e.Surfaces {
		if s := r.surfaces[p]; !s.Parametric() {
			res.Surfaces = append(res.Surfaces, p)
		}
	}
	res.Tags = slices.Clone(e.Tags)
	return res
}
