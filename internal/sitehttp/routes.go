// Package sitehttp mounts the public API surface on the chi router: page
// view-models under PagesPrefix and the revalidation webhook.
package sitehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	PagesPrefix    = "/api/pages"
	RevalidatePath = "/revalidate"
)

type Routes struct {
	Pages      http.Handler
	Revalidate http.Handler

	// RevalidateMW wraps the webhook only, e.g. a stricter rate limiter.
	RevalidateMW []func(http.Handler) http.Handler
}

func New(pages, revalidate http.Handler, revalidateMW ...func(http.Handler) http.Handler) *Routes {
	return &Routes{Pages: pages, Revalidate: revalidate, RevalidateMW: revalidateMW}
}

// RegisterRoutes registers the API routes and the JSON not-found fallback.
// Handlers check their own methods so a wrong method gets a JSON body too.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	if rt.Pages != nil {
		r.Handle(PagesPrefix, rt.Pages)
		r.Handle(PagesPrefix+"/*", rt.Pages)
	}
	if rt.Revalidate != nil {
		r.With(rt.RevalidateMW...).Handle(RevalidatePath, rt.Revalidate)
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusNotFound, `{"message":"Not found"}`)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusMethodNotAllowed, `{"message":"Method not allowed"}`)
}

func writeMessage(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}
