package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onterra/onterra-web/internal/assets"
	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/httpserver"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/pagecache"
	"github.com/onterra/onterra-web/internal/registry"
	"github.com/onterra/onterra-web/internal/revalidate"
	"github.com/onterra/onterra-web/internal/sitehandler"
	"github.com/onterra/onterra-web/internal/sitehttp"
	"github.com/onterra/onterra-web/internal/webassets"
)

const testSecret = "integration-secret"

type stack struct {
	handler http.Handler
	cache   *pagecache.Cache[sitehandler.Page]
}

type info struct{ version string }

func (i info) ContentBackend() string  { return "fs" }
func (i info) RegistryVersion() string { return i.version }

// newStack wires the embedded seed content through the real store, client,
// composer, page cache, dispatcher and middleware chain.
func newStack(t *testing.T) *stack {
	t.Helper()

	seed, ok := webassets.SeedContentFS()
	if !ok {
		t.Fatal("seed content not embedded")
	}
	store := content.NewStore(seed)
	if _, _, err := store.Reload(); err != nil {
		t.Fatalf("store reload: %v", err)
	}

	client, err := content.NewClient(content.Options{Transport: store, Logger: log.Nop()})
	if err != nil {
		t.Fatalf("content client: %v", err)
	}
	composer, err := compose.New(compose.Options{
		Client: client,
		Assets: assets.Resolver{CDNBase: "https://cdn.example.test", ProjectID: "proj", Dataset: "production"},
	})
	if err != nil {
		t.Fatalf("composer: %v", err)
	}
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	cache, err := pagecache.New[sitehandler.Page](pagecache.Options{Logger: log.Nop()})
	if err != nil {
		t.Fatalf("pagecache: %v", err)
	}

	pages, err := sitehandler.New(sitehandler.Options{
		Surfaces:   reg,
		Composer:   composer,
		Cache:      cache,
		FallbackFS: webassets.FallbackFS(),
	})
	if err != nil {
		t.Fatalf("sitehandler: %v", err)
	}
	dispatcher, err := revalidate.New(revalidate.Options{
		Registry:    reg,
		Invalidator: cache,
		Secret:      testSecret,
	})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}

	routes := sitehttp.New(pages, dispatcher)
	h := httpserver.NewHandler(httpserver.Options{
		Logger:      log.Nop(),
		APIRoutes:   routes.RegisterRoutes,
		ContentInfo: info{version: reg.Version()},
	})
	return &stack{handler: h, cache: cache}
}

func (s *stack) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// TestIntegration_FullStack verifies security headers, status codes and
// view-model serving through every middleware layer.
func TestIntegration_FullStack(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	t.Run("serves every static surface", func(t *testing.T) {
		for _, p := range []string{"", "/about", "/about/team", "/contact", "/legal"} {
			rec := s.do(t, http.MethodGet, "/api/pages"+p, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("%q: status = %d, body = %s", p, rec.Code, rec.Body.String())
			}
			if !json.Valid(rec.Body.Bytes()) {
				t.Fatalf("%q: body is not JSON", p)
			}
		}
	})

	t.Run("about page carries seed content and headers", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/pages/about", "")
		if !strings.Contains(rec.Body.String(), "About Onterra") {
			t.Fatalf("body = %s", rec.Body.String())
		}

		for _, hdr := range []string{
			"Strict-Transport-Security",
			"Content-Security-Policy",
			"X-Content-Type-Options",
			"X-Frame-Options",
			"Referrer-Policy",
			"Permissions-Policy",
			"X-Request-Id",
			"ETag",
			"X-Cache",
		} {
			if rec.Header().Get(hdr) == "" {
				t.Errorf("missing header: %s", hdr)
			}
		}
		if got := rec.Header().Get("X-Content-Backend"); got != "fs" {
			t.Errorf("X-Content-Backend = %q, want fs", got)
		}
	})

	t.Run("legal instance resolves by slug", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/pages/legal/privacy", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "Privacy Policy") {
			t.Fatalf("body = %s", rec.Body.String())
		}
	})

	t.Run("unknown legal slug is 404", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/pages/legal/cookies", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if rec.Header().Get("Strict-Transport-Security") == "" {
			t.Fatal("HSTS missing on 404 response")
		}
	})

	t.Run("path outside the API is JSON 404", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/does-not-exist", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Fatalf("Content-Type = %q", ct)
		}
	})

	t.Run("POST to a page is 405", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/pages/about", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("HEAD returns 200 without body", func(t *testing.T) {
		rec := s.do(t, http.MethodHead, "/api/pages/contact", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Fatalf("HEAD body = %q", rec.Body.String())
		}
	})
}

// TestIntegration_RevalidateEvictsSurfaces covers the webhook through the
// full chain and its effect on cached surfaces.
func TestIntegration_RevalidateEvictsSurfaces(t *testing.T) {
	t.Parallel()
	s := newStack(t)

	for _, p := range []string{"/api/pages", "/api/pages/about", "/api/pages/about/team"} {
		if rec := s.do(t, http.MethodGet, p, ""); rec.Code != http.StatusOK {
			t.Fatalf("warm %s: status = %d", p, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodGet, "/api/pages/about", ""); rec.Header().Get("X-Cache") != "hit" {
		t.Fatalf("X-Cache = %q, want hit before revalidation", rec.Header().Get("X-Cache"))
	}

	t.Run("wrong secret is 401 and evicts nothing", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/revalidate", `{"secret":"nope","type":"aboutPage"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid secret") {
			t.Fatalf("body = %s", rec.Body.String())
		}
		if _, ok := s.cache.Peek("/about"); !ok {
			t.Fatal("/about evicted by rejected request")
		}
	})

	t.Run("aboutPage evicts only the about surface", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/revalidate", `{"secret":"`+testSecret+`","type":"aboutPage"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var ack revalidate.Ack
		if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
			t.Fatalf("decode ack: %v", err)
		}
		if !ack.Revalidated || ack.Type != "aboutPage" || ack.Slug != nil || ack.Now == 0 {
			t.Fatalf("ack = %+v", ack)
		}

		if _, ok := s.cache.Peek("/about"); ok {
			t.Fatal("/about still cached")
		}
		for _, p := range []string{"/", "/about/team"} {
			if _, ok := s.cache.Peek(p); !ok {
				t.Fatalf("%s evicted by aboutPage change", p)
			}
		}

		rec = s.do(t, http.MethodGet, "/api/pages/about", "")
		if rec.Header().Get("X-Cache") != "miss" {
			t.Fatalf("X-Cache = %q, want miss after revalidation", rec.Header().Get("X-Cache"))
		}
	})

	t.Run("siteSettings evicts every page", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/revalidate", `{"secret":"`+testSecret+`","type":"siteSettings"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if n := s.cache.Len(); n != 0 {
			t.Fatalf("cache still holds %d entries: %v", n, s.cache.Paths())
		}
	})

	t.Run("GET on the webhook is 405", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/revalidate", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rec.Code)
		}
	})
}
