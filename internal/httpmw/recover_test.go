package httpmw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecover_PassThrough(t *testing.T) {
	L := newMemLogger()
	rec := httptest.NewRecorder()
	Recover(L, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNoContent || len(L.all()) != 0 {
		t.Fatalf("status = %d, lines = %v", rec.Code, L.all())
	}
}

func TestRecover_PanicBecomesJSON500(t *testing.T) {
	for _, tc := range []struct {
		name string
		val  any
	}{
		{"string", "composer exploded"},
		{"error", errors.New("nil map write")},
		{"other", 42},
	} {
		t.Run(tc.name, func(t *testing.T) {
			L := newMemLogger()
			panics := 0
			rec := httptest.NewRecorder()
			Recover(L, func() { panics++ })(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tc.val)
			})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/pages/about", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Fatalf("Content-Type = %q", ct)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("error response must not be cached")
			}
			if strings.Contains(rec.Body.String(), "exploded") || strings.Contains(rec.Body.String(), "nil map") {
				t.Fatalf("panic value leaked: %q", rec.Body.String())
			}
			if panics != 1 {
				t.Fatalf("onPanic called %d times", panics)
			}
			lines := L.all()
			if len(lines) != 1 || lines[0].level != "error" || lines[0].fields["path"] != "/api/pages/about" {
				t.Fatalf("lines = %+v", lines)
			}
		})
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	h := Recover(nil, func() { t.Fatal("abort is not a panic to count") })(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }))

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want ErrAbortHandler", r)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
}
