package sitehandler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/cryptoutil"
)

// Page is a serialized view-model as held in the page cache.
type Page struct {
	Surface string
	Body    []byte
	ETag    string
}

func newPage(surface string, vm compose.ViewModel) (Page, error) {
	body, err := json.Marshal(vm)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Surface: surface,
		Body:    body,
		ETag:    `"` + cryptoutil.Fingerprint(body, 32) + `"`,
	}, nil
}

// etagMatches implements the If-None-Match comparison for strong tags.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, cand := range strings.Split(header, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "*" || cand == etag || strings.TrimPrefix(cand, "W/") == etag {
			return true
		}
	}
	return false
}

func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	if !etagMatches(r.Header.Get("If-None-Match"), etag) {
		return false
	}
	w.WriteHeader(http.StatusNotModified)
	return true
}
