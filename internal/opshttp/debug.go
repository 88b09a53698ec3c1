package opshttp

import (
	"encoding/json"
	"net/http"

	"github.com/onterra/onterra-web/internal/registry"
)

// RegistryView is the part of the registry exposed for inspection.
type RegistryView interface {
	Version() string
	Table() registry.Table
}

// PageCacheView lists cached page paths.
type PageCacheView interface {
	Paths() []string
}

type registryDump struct {
	Version string         `json:"version"`
	Table   registry.Table `json:"table"`
}

type pageCacheDump struct {
	Entries int      `json:"entries"`
	Paths   []string `json:"paths"`
}

func registryHandler(reg RegistryView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, registryDump{Version: reg.Version(), Table: reg.Table()})
	}
}

func pageCacheHandler(pc PageCacheView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths := pc.Paths()
		if paths == nil {
			paths = []string{}
		}
		writeJSON(w, pageCacheDump{Entries: len(paths), Paths: paths})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
