package compose

// ViewModel is the composed, asset-resolved object a surface renderer
// consumes. Values are built fresh per composition and never mutated after
// Compose returns.
type ViewModel interface {
	SurfacePath() string
}

// Image is a resolved asset. A nil *Image means the source field was empty
// or its reference could not be resolved.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type Site struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Logo        *Image `json:"logo"`
	OGImage     *Image `json:"ogImage"`
}

type Contact struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Social struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Chrome is the global header/footer data rendered on every surface.
// Optional sections are nil when their document is missing or failed.
type Chrome struct {
	Site       Site     `json:"site"`
	Navigation []Link   `json:"navigation"`
	Contact    *Contact `json:"contact"`
	Social     []Social `json:"social"`
}

type Hero struct {
	Heading         string `json:"heading"`
	Subheading      string `json:"subheading"`
	CTA             *Link  `json:"cta"`
	BackgroundImage *Image `json:"backgroundImage"`
}

type Card struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Icon  *Image `json:"icon"`
}

type Section struct {
	Heading string `json:"heading"`
	Intro   string `json:"intro"`
	Items   []Card `json:"items"`
}

type HomePage struct {
	Path       string   `json:"path"`
	Chrome     Chrome   `json:"chrome"`
	Hero       *Hero    `json:"hero"`
	Strategies *Section `json:"strategies"`
	Standards  *Section `json:"standards"`
}

func (v *HomePage) SurfacePath() string { return v.Path }

type About struct {
	Heading  string `json:"heading"`
	BodyHTML string `json:"bodyHtml"`
	Image    *Image `json:"image"`
}

type AboutPage struct {
	Path   string `json:"path"`
	Chrome Chrome `json:"chrome"`
	About  About  `json:"about"`
}

func (v *AboutPage) SurfacePath() string { return v.Path }

type Member struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Bio      string `json:"bio"`
	LinkedIn string `json:"linkedin"`
	Photo    *Image `json:"photo"`
}

type TeamIntro struct {
	Heading   string `json:"heading"`
	Intro     string `json:"intro"`
	HeroImage *Image `json:"heroImage"`
}

type TeamPage struct {
	Path    string     `json:"path"`
	Chrome  Chrome     `json:"chrome"`
	Intro   *TeamIntro `json:"intro"`
	Members []Member   `json:"members"`
}

func (v *TeamPage) SurfacePath() string { return v.Path }

type ContactPage struct {
	Path    string  `json:"path"`
	Chrome  Chrome  `json:"chrome"`
	Contact Contact `json:"contact"`
}

func (v *ContactPage) SurfacePath() string { return v.Path }

type LegalSummary struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Href          string `json:"href"`
	EffectiveDate string `json:"effectiveDate"`
}

type LegalIndexPage struct {
	Path   string         `json:"path"`
	Chrome Chrome         `json:"chrome"`
	Pages  []LegalSummary `json:"pages"`
}

func (v *LegalIndexPage) SurfacePath() string { return v.Path }

type LegalDocument struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	BodyHTML      string `json:"bodyHtml"`
	EffectiveDate string `json:"effectiveDate"`
}

type LegalPage struct {
	Path   string        `json:"path"`
	Chrome Chrome        `json:"chrome"`
	Page   LegalDocument `json:"page"`
}

func (v *LegalPage) SurfacePath() string { return v.Path }
