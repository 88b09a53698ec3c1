package cms

import (
	"fmt"
	"slices"
)

// ContentType identifies the category of a content store document.
// The set is closed: every value the store may emit is declared here.
type ContentType string

const (
	SiteSettings         ContentType = "siteSettings"
	Navigation           ContentType = "navigation"
	ContactDetails       ContentType = "contactDetails"
	SocialLinks          ContentType = "socialLinks"
	HeroSection          ContentType = "heroSection"
	InvestmentStrategies ContentType = "investmentStrategies"
	OnterraStandards     ContentType = "onterraStandards"
	AboutPage            ContentType = "aboutPage"
	TeamMember           ContentType = "teamMember"
	TeamPage             ContentType = "teamPage"
	LegalPage            ContentType = "legalPage"
)

var allContentTypes = []ContentType{
	SiteSettings,
	Navigation,
	ContactDetails,
	SocialLinks,
	HeroSection,
	InvestmentStrategies,
	OnterraStandards,
	AboutPage,
	TeamMember,
	TeamPage,
	LegalPage,
}

// AllContentTypes returns every declared content type in declaration order.
// The returned slice is a copy.
func AllContentTypes() []ContentType {
	return slices.Clone(allContentTypes)
}

// Known reports whether t is one of the declared content types.
func (t ContentType) Known() bool {
	return slices.Contains(allContentTypes, t)
}

func (t ContentType) String() string { return string(t) }

// ParseError is returned when a string does not name a declared content type.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cms: unknown content type %q", e.Value)
}

// ParseContentType maps a store type identifier to a ContentType.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(s)
	if !t.Known() {
		return "", &ParseError{Value: s}
	}
	return t, nil
}

// MarshalText implements encoding.TextMarshaler.
func (t ContentType) MarshalText() ([]byte, error) {
	if !t.Known() {
		return nil, &ParseError{Value: string(t)}
	}
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ContentType) UnmarshalText(b []byte) error {
	v, err := ParseContentType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
