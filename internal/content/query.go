package content

import (
	"fmt"
	"slices"
	"strings"

	"github.com/onterra/onterra-web/internal/cms"
)

// QueryID names one entry of the query catalogue.
type QueryID string

const (
	QSiteSettings         QueryID = "siteSettings"
	QNavigation           QueryID = "navigation"
	QContactDetails       QueryID = "contactDetails"
	QSocialLinks          QueryID = "socialLinks"
	QHeroSection          QueryID = "heroSection"
	QInvestmentStrategies QueryID = "investmentStrategies"
	QOnterraStandards     QueryID = "onterraStandards"
	QAboutPage            QueryID = "aboutPage"
	QTeamMembers          QueryID = "teamMembers"
	QTeamPage             QueryID = "teamPage"
	QLegalPages           QueryID = "legalPages"
	QLegalPageBySlug      QueryID = "legalPageBySlug"
)

// Shape describes how many documents a query yields.
type Shape int

const (
	// Singleton yields the first matching document or null.
	Singleton Shape = iota
	// List yields every matching document, possibly empty.
	List
	// BySlug yields the document whose slug.current equals the "slug" param, or null.
	BySlug
)

func (s Shape) String() string {
	switch s {
	case Singleton:
		return "singleton"
	case List:
		return "list"
	case BySlug:
		return "by-slug"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Query is a catalogue entry. Projection is the single source of truth for
// the fields a content type exposes.
type Query struct {
	ID         QueryID
	Type       cms.ContentType
	Shape      Shape
	Projection string
	// Order is a GROQ ordering ("order asc"). For List queries served from an
	// export the first term's field is used as the sort key.
	Order string
}

// Params are query parameters. Only "slug" is used by the catalogue.
type Params map[string]string

const ParamSlug = "slug"

const (
	sysFields = `_id, _type, _updatedAt`
	assetProj = `{alt, asset{_ref, "url": @->url}}`
)

var catalogue = map[QueryID]Query{
	QSiteSettings: {
		ID: QSiteSettings, Type: cms.SiteSettings, Shape: Singleton,
		Projection: sysFields + `, title, description, logo` + assetProj + `, ogImage` + assetProj,
	},
	QNavigation: {
		ID: QNavigation, Type: cms.Navigation, Shape: Singleton,
		Projection: sysFields + `, items[]{label, href}`,
	},
	QContactDetails: {
		ID: QContactDetails, Type: cms.ContactDetails, Shape: Singleton,
		Projection: sysFields + `, email, phone, address`,
	},
	QSocialLinks: {
		ID: QSocialLinks, Type: cms.SocialLinks, Shape: Singleton,
		Projection: sysFields + `, links[]{platform, url}`,
	},
	QHeroSection: {
		ID: QHeroSection, Type: cms.HeroSection, Shape: Singleton,
		Projection: sysFields + `, heading, subheading, cta{label, href}, backgroundImage` + assetProj,
	},
	QInvestmentStrategies: {
		ID: QInvestmentStrategies, Type: cms.InvestmentStrategies, Shape: Singleton,
		Projection: sysFields + `, heading, strategies[]{title, summary, icon` + assetProj + `}`,
	},
	QOnterraStandards: {
		ID: QOnterraStandards, Type: cms.OnterraStandards, Shape: Singleton,
		Projection: sysFields + `, heading, intro, standards[]{title, body, icon` + assetProj + `}`,
	},
	QAboutPage: {
		ID: QAboutPage, Type: cms.AboutPage, Shape: Singleton,
		Projection: sysFields + `, heading, body, image` + assetProj,
	},
	QTeamMembers: {
		ID: QTeamMembers, Type: cms.TeamMember, Shape: List,
		Projection: sysFields + `, name, role, bio, photo` + assetProj + `, linkedin, order`,
		Order:      "order asc",
	},
	QTeamPage: {
		ID: QTeamPage, Type: cms.TeamPage, Shape: Singleton,
		Projection: sysFields + `, heading, intro, heroImage` + assetProj,
	},
	QLegalPages: {
		ID: QLegalPages, Type: cms.LegalPage, Shape: List,
		Projection: sysFields + `, title, slug, effectiveDate`,
		Order:      "title asc",
	},
	QLegalPageBySlug: {
		ID: QLegalPageBySlug, Type: cms.LegalPage, Shape: BySlug,
		Projection: sysFields + `, title, slug, body, effectiveDate`,
	},
}

// Lookup returns the catalogue entry for id.
func Lookup(id QueryID) (Query, bool) {
	q, ok := catalogue[id]
	return q, ok
}

// Queries returns every catalogue entry sorted by ID.
func Queries() []Query {
	out := make([]Query, 0, len(catalogue))
	for _, q := range catalogue {
		out = append(out, q)
	}
	slices.SortFunc(out, func(a, b Query) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

// GROQ renders the query text sent to the content store. Draft documents are
// excluded by the store's published perspective, not by the filter.
func (q Query) GROQ() string {
	var b strings.Builder
	fmt.Fprintf(&b, `*[_type == %q`, string(q.Type))
	if q.Shape == BySlug {
		b.WriteString(` && slug.current == $slug`)
	}
	b.WriteString(`]`)
	if q.Shape == List && q.Order != "" {
		fmt.Fprintf(&b, ` | order(%s)`, q.Order)
	}
	if q.Shape != List {
		b.WriteString(`[0]`)
	}
	if q.Projection != "" {
		fmt.Fprintf(&b, `{%s}`, q.Projection)
	}
	return b.String()
}

// orderField returns the field name and direction of the first Order term.
func (q Query) orderField() (field string, desc bool) {
	first, _, _ := strings.Cut(q.Order, ",")
	parts := strings.Fields(first)
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], len(parts) > 1 && strings.EqualFold(parts[1], "desc")
}
