// Package assets turns content store asset references into fetchable URLs.
package assets

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/onterra/onterra-web/internal/cms"
)

const DefaultCDNBase = "https://cdn.sanity.io"

var (
	imageRef = regexp.MustCompile(`^image-([A-Za-z0-9]+)-([0-9]+x[0-9]+)-([a-z0-9]+)$`)
	fileRef  = regexp.MustCompile(`^file-([A-Za-z0-9]+)-([a-z0-9]+)$`)
	idPart   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Resolver maps asset references to CDN URLs. The zero value resolves only
// references that already carry a URL.
type Resolver struct {
	CDNBase   string
	ProjectID string
	Dataset   string
}

// Resolve returns the URL for ref, or nil when ref is nil, empty or malformed.
// A reference that already carries a URL is returned unchanged.
func (r Resolver) Resolve(ref *cms.AssetRef) *string {
	if ref == nil || ref.Asset == nil {
		return nil
	}
	if ref.Asset.URL != "" {
		return r.ResolveString(ref.Asset.URL)
	}
	return r.ResolveString(ref.Asset.Ref)
}

// ResolveString resolves a bare reference id or URL.
func (r Resolver) ResolveString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if isURL(s) {
		return &s
	}
	if m := imageRef.FindStringSubmatch(s); m != nil {
		return r.build("images", fmt.Sprintf("%s-%s.%s", m[1], m[2], m[3]))
	}
	if m := fileRef.FindStringSubmatch(s); m != nil {
		return r.build("files", fmt.Sprintf("%s.%s", m[1], m[2]))
	}
	return nil
}

func (r Resolver) build(kind, name string) *string {
	if !idPart.MatchString(r.ProjectID) || !idPart.MatchString(r.Dataset) {
		return nil
	}
	base := r.CDNBase
	if base == "" {
		base = DefaultCDNBase
	}
	u := strings.TrimRight(base, "/") + "/" + kind + "/" + r.ProjectID + "/" + r.Dataset + "/" + name
	return &u
}

// isURL accepts absolute http(s) URLs with a host, protocol-relative URLs
// with a host and site-relative paths. Browsers read a backslash after the
// leading slash as "//", so those never count as site paths.
func isURL(s string) bool {
	if strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		return !strings.Contains(s, "\\")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "https", "http":
		return true
	case "":
		return strings.HasPrefix(s, "//")
	}
	return false
}
