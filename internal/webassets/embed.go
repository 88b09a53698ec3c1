// Package webassets embeds the static JSON documents served when no view
// model can be produced, plus a seed content tree for the fs store.
package webassets

import (
	"embed"
	"io/fs"
)

var (
	//go:embed fallback/*.json
	fallback embed.FS

	//go:embed seed
	seed embed.FS
)

// FallbackFS holds maintenance.json and 404.json at its root.
func FallbackFS() fs.FS { return sub(fallback, "fallback") }

// SeedContentFS returns the seed tree, or false when it has no
// siteSettings document and so cannot back a site.
func SeedContentFS() (fs.FS, bool) {
	tree := sub(seed, "seed")
	if entries, err := fs.ReadDir(tree, "siteSettings"); err != nil || len(entries) == 0 {
		return nil, false
	}
	return tree, true
}

func sub(f embed.FS, dir string) fs.FS {
	s, err := fs.Sub(f, dir)
	if err != nil {
		// dir is a literal embedded above
		panic("webassets: " + err.Error())
	}
	return s
}
