package cms

import (
	"fmt"
	"strings"
	"time"
)

// Document is implemented by every closed document type. Values are
// produced by the fetch client only after Validate succeeds.
type Document interface {
	DocType() ContentType
	Validate() error
}

// ValidationError reports a document that does not satisfy its type's shape.
type ValidationError struct {
	Type   ContentType
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cms: invalid %s document", e.Type)
	if e.ID != "" {
		fmt.Fprintf(&b, " %q", e.ID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s", e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// Meta holds the system fields every store document carries.
type Meta struct {
	ID        string    `json:"_id"`
	Type      string    `json:"_type"`
	UpdatedAt time.Time `json:"_updatedAt,omitzero"`
}

func (m Meta) check(t ContentType) error {
	if m.Type != string(t) {
		return &ValidationError{Type: t, ID: m.ID, Field: "_type", Reason: fmt.Sprintf("declares %q", m.Type)}
	}
	return nil
}

func required(t ContentType, m Meta, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Type: t, ID: m.ID, Field: field, Reason: "required"}
	}
	return nil
}

// Slug is the store's slug object.
type Slug struct {
	Current string `json:"current"`
}

// Link is a labelled href.
type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type SiteSettingsDoc struct {
	Meta
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Logo        *AssetRef `json:"logo,omitempty"`
	OGImage     *AssetRef `json:"ogImage,omitempty"`
}

func (SiteSettingsDoc) DocType() ContentType { return SiteSettings }

func (d SiteSettingsDoc) Validate() error {
	if err := d.check(SiteSettings); err != nil {
		return err
	}
	return required(SiteSettings, d.Meta, "title", d.Title)
}

type NavigationDoc struct {
	Meta
	Items []Link `json:"items"`
}

func (NavigationDoc) DocType() ContentType { return Navigation }

func (d NavigationDoc) Validate() error {
	if err := d.check(Navigation); err != nil {
		return err
	}
	for i, it := range d.Items {
		if err := required(Navigation, d.Meta, fmt.Sprintf("items[%d].label", i), it.Label); err != nil {
			return err
		}
		if err := required(Navigation, d.Meta, fmt.Sprintf("items[%d].href", i), it.Href); err != nil {
			return err
		}
	}
	return nil
}

type ContactDetailsDoc struct {
	Meta
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (ContactDetailsDoc) DocType() ContentType { return ContactDetails }

func (d ContactDetailsDoc) Validate() error {
	if err := d.check(ContactDetails); err != nil {
		return err
	}
	if d.Email == "" && d.Phone == "" && d.Address == "" {
		return &ValidationError{Type: ContactDetails, ID: d.ID, Reason: "one of email, phone or address is required"}
	}
	return nil
}

type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type SocialLinksDoc struct {
	Meta
	Links []SocialLink `json:"links"`
}

func (SocialLinksDoc) DocType() ContentType { return SocialLinks }

func (d SocialLinksDoc) Validate() error {
	if err := d.check(SocialLinks); err != nil {
		return err
	}
	for i, l := range d.Links {
		if err := required(SocialLinks, d.Meta, fmt.Sprintf("links[%d].url", i), l.URL); err != nil {
			return err
		}
	}
	return nil
}

type HeroSectionDoc struct {
	Meta
	Heading         string    `json:"heading"`
	Subheading      string    `json:"subheading,omitempty"`
	CTA             *Link     `json:"cta,omitempty"`
	BackgroundImage *AssetRef `json:"backgroundImage,omitempty"`
}

func (HeroSectionDoc) DocType() ContentType { return HeroSection }

func (d HeroSectionDoc) Validate() error {
	if err := d.check(HeroSection); err != nil {
		return err
	}
	return required(HeroSection, d.Meta, "heading", d.Heading)
}

type Strategy struct {
	Title   string    `json:"title"`
	Summary string    `json:"summary,omitempty"`
	Icon    *AssetRef `json:"icon,omitempty"`
}

type InvestmentStrategiesDoc struct {
	Meta
	Heading    string     `json:"heading,omitempty"`
	Strategies []Strategy `json:"strategies"`
}

func (InvestmentStrategiesDoc) DocType() ContentType { return InvestmentStrategies }

func (d InvestmentStrategiesDoc) Validate() error {
	if err := d.check(InvestmentStrategies); err != nil {
		return err
	}
	for i, s := range d.Strategies {
		if err := required(InvestmentStrategies, d.Meta, fmt.Sprintf("strategies[%d].title", i), s.Title); err != nil {
			return err
		}
	}
	return nil
}

type Standard struct {
	Title string    `json:"title"`
	Body  string    `json:"body,omitempty"`
	Icon  *AssetRef `json:"icon,omitempty"`
}

type OnterraStandardsDoc struct {
	Meta
	Heading   string     `json:"heading"`
	Intro     string     `json:"intro,omitempty"`
	Standards []Standard `json:"standards"`
}

func (OnterraStandardsDoc) DocType() ContentType { return OnterraStandards }

func (d OnterraStandardsDoc) Validate() error {
	if err := d.check(OnterraStandards); err != nil {
		return err
	}
	return required(OnterraStandards, d.Meta, "heading", d.Heading)
}

type AboutPageDoc struct {
	Meta
	Heading string    `json:"heading"`
	Body    string    `json:"body,omitempty"`
	Image   *AssetRef `json:"image,omitempty"`
}

func (AboutPageDoc) DocType() ContentType { return AboutPage }

func (d AboutPageDoc) Validate() error {
	if err := d.check(AboutPage); err != nil {
		return err
	}
	return required(AboutPage, d.Meta, "heading", d.Heading)
}

type TeamMemberDoc struct {
	Meta
	Name     string    `json:"name"`
	Role     string    `json:"role,omitempty"`
	Bio      string    `json:"bio,omitempty"`
	Photo    *AssetRef `json:"photo,omitempty"`
	LinkedIn string    `json:"linkedin,omitempty"`
	Order    int       `json:"order,omitempty"`
}

func (TeamMemberDoc) DocType() ContentType { return TeamMember }

func (d TeamMemberDoc) Validate() error {
	if err := d.check(TeamMember); err != nil {
		return err
	}
	return required(TeamMember, d.Meta, "name", d.Name)
}

type TeamPageDoc struct {
	Meta
	Heading   string    `json:"heading"`
	Intro     string    `json:"intro,omitempty"`
	HeroImage *AssetRef `json:"heroImage,omitempty"`
}

func (TeamPageDoc) DocType() ContentType { return TeamPage }

func (d TeamPageDoc) Validate() error {
	if err := d.check(TeamPage); err != nil {
		return err
	}
	return required(TeamPage, d.Meta, "heading", d.Heading)
}

// LegalPageDoc bodies are markdown.
type LegalPageDoc struct {
	Meta
	Title         string `json:"title"`
	Slug          Slug   `json:"slug"`
	Body          string `json:"body,omitempty"`
	EffectiveDate string `json:"effectiveDate,omitempty"`
}

func (LegalPageDoc) DocType() ContentType { return LegalPage }

func (d LegalPageDoc) Validate() error {
	if err := d.check(LegalPage); err != nil {
		return err
	}
	if err := required(LegalPage, d.Meta, "title", d.Title); err != nil {
		return err
	}
	return required(LegalPage, d.Meta, "slug.current", d.Slug.Current)
}
