package compose

import (
	"slices"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/content"
)

const (
	SurfaceHome       = "/"
	SurfaceAbout      = "/about"
	SurfaceTeam       = "/about/team"
	SurfaceContact    = "/contact"
	SurfaceLegalIndex = "/legal"
	SurfaceLegalPage  = "/legal/{slug}"
)

// Need says how a surface treats the absence or failure of a document.
type Need int

const (
	// Optional documents degrade to nil on failure or absence.
	Optional Need = iota
	// Required documents fail the composition when the fetch fails or
	// yields nothing.
	Required
	// Lookup documents fail the composition when the fetch fails; a null
	// result means the surface instance does not exist (ErrNotFound).
	Lookup
)

func (n Need) String() string {
	switch n {
	case Required:
		return "required"
	case Lookup:
		return "lookup"
	default:
		return "optional"
	}
}

// Dep is one document query a surface depends on.
type Dep struct {
	Query content.QueryID
	Type  cms.ContentType
	Need  Need
}

func dep(id content.QueryID, n Need) Dep {
	q, _ := content.Lookup(id)
	return Dep{Query: id, Type: q.Type, Need: n}
}

func chromeDeps(contact Need) []Dep {
	return []Dep{
		dep(content.QSiteSettings, Required),
		dep(content.QNavigation, Optional),
		dep(content.QContactDetails, contact),
		dep(content.QSocialLinks, Optional),
	}
}

var surfaceDeps = map[string][]Dep{
	SurfaceHome: append(chromeDeps(Optional),
		dep(content.QHeroSection, Optional),
		dep(content.QInvestmentStrategies, Optional),
		dep(content.QOnterraStandards, Optional),
	),
	SurfaceAbout: append(chromeDeps(Optional),
		dep(content.QAboutPage, Required),
	),
	SurfaceTeam: append(chromeDeps(Optional),
		dep(content.QTeamPage, Optional),
		dep(content.QTeamMembers, Required),
	),
	SurfaceContact:    chromeDeps(Required),
	SurfaceLegalIndex: append(chromeDeps(Optional), dep(content.QLegalPages, Required)),
	SurfaceLegalPage:  append(chromeDeps(Optional), dep(content.QLegalPageBySlug, Lookup)),
}

var chromeAssetPaths = []string{"chrome.site.logo", "chrome.site.ogImage"}

// AssetPaths lists, per surface, every field path of the view-model that
// carries a resolved asset. "[]" marks every element of an array. Tests
// check each composed view-model against this list; extend it whenever an
// asset-bearing field is added.
var AssetPaths = map[string][]string{
	SurfaceHome: append(slices.Clone(chromeAssetPaths),
		"hero.backgroundImage",
		"strategies.items[].icon",
		"standards.items[].icon",
	),
	SurfaceAbout: append(slices.Clone(chromeAssetPaths),
		"about.image",
	),
	SurfaceTeam: append(slices.Clone(chromeAssetPaths),
		"intro.heroImage",
		"members[].photo",
	),
	SurfaceContact:    slices.Clone(chromeAssetPaths),
	SurfaceLegalIndex: slices.Clone(chromeAssetPaths),
	SurfaceLegalPage:  slices.Clone(chromeAssetPaths),
}

// Surfaces returns every composable surface pattern, sorted.
func Surfaces() []string {
	out := make([]string, 0, len(surfaceDeps))
	for p := range surfaceDeps {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Deps returns the documents the surface pattern depends on.
func Deps(pattern string) ([]Dep, bool) {
	d, ok := surfaceDeps[pattern]
	return slices.Clone(d), ok
}
