package compose

import (
	"errors"
	"fmt"
	"slices"

	"github.com/onterra/onterra-web/internal/registry"
)

// verifySlug is a syntactically valid slug used to probe parametric entries.
const verifySlug = "registry-verify"

// VerifyRegistry checks that the composers and the invalidation table agree:
// every composable surface is declared in the registry and vice versa, and
// every content type a surface reads resolves to an invalidation that
// covers that surface, by path or by tag. Drift here means a document
// change could leave a page stale.
func VerifyRegistry(reg *registry.Registry) error {
	var errs []error

	declared := map[string]registry.Surface{}
	for _, s := range reg.Surfaces() {
		declared[s.Path] = s
		if _, ok := surfaceDeps[s.Path]; !ok {
			errs = append(errs, fmt.Errorf("registry surface %s has no composer", s.Path))
		}
	}

	for _, pattern := range Surfaces() {
		s, ok := declared[pattern]
		if !ok {
			errs = append(errs, fmt.Errorf("composer %s is not declared in the registry", pattern))
			continue
		}
		instance := pattern
		if s.Parametric() {
			instance = s.Instance(verifySlug)
		}
		for _, d := range surfaceDeps[pattern] {
			probes := []string{""}
			if e, _ := reg.Entry(d.Type); e.RequiresSlug {
				probes = append(probes, verifySlug)
			}
			for _, slug := range probes {
				res := reg.Resolve(string(d.Type), slug)
				if res.Kind != registry.KindSpecific {
					errs = append(errs, fmt.Errorf("surface %s reads %s which has no registry entry", pattern, d.Type))
					break
				}
				if !covers(res, s, instance) {
					errs = append(errs, fmt.Errorf("surface %s reads %s but %s (slug %q) does not invalidate it",
						pattern, d.Type, d.Type, slug))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// covers reports whether res evicts the given instance of surface s.
func covers(res registry.Resolution, s registry.Surface, instance string) bool {
	if slices.Contains(res.Surfaces, instance) {
		return true
	}
	for _, tag := range res.Tags {
		if slices.Contains(s.Tags, tag) {
			return true
		}
	}
	return false
}
