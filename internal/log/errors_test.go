package log

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/onterra/onterra-web/internal/xerrors"
)

type notFound struct{ id string }

func (e *notFound) Error() string { return "document " + e.id + " not found" }

func TestErrorChain(t *testing.T) {
	base := errors.New("eof")
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"single", base, []string{"eof"}},
		{"wrapped", fmt.Errorf("read: %w", base), []string{"read: eof", "eof"}},
		{"stack only", xerrors.EnsureTrace(base), []string{"eof"}},
		{"joined", errors.Join(errors.New("a"), errors.New("b")), []string{"a\nb", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorChain(tt.err); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("errorChain = %q, want %q", got, tt.want)
			}
		})
	}
	if got := errorChain(nil); len(got) != 0 {
		t.Fatalf("nil chain = %q", got)
	}
}

func TestErrorTypes(t *testing.T) {
	nf := &notFound{id: "aboutPage"}
	tests := []struct {
		err            error
		surface, cause string
	}{
		{nil, "", ""},
		{nf, "*log.notFound", "*log.notFound"},
		{fmt.Errorf("compose: %w", nf), "*log.notFound", "*log.notFound"},
		{xerrors.Wrap(fmt.Errorf("x: %w", errors.New("y")), "z"), "*errors.errorString", "*errors.errorString"},
		{fmt.Errorf("plain %d", 1), "*errors.errorString", "*errors.errorString"},
	}
	for _, tt := range tests {
		s, c := errorTypes(tt.err)
		if s != tt.surface || c != tt.cause {
			t.Errorf("errorTypes(%v) = %q, %q; want %q, %q", tt.err, s, c, tt.surface, tt.cause)
		}
	}
}

func TestErrorLinks(t *testing.T) {
	err := xerrors.Wrap(xerrors.Wrap(errors.New("root"), "inner"), "outer")

	links := errorLinks(err, 8)
	if len(links) != 2 {
		t.Fatalf("links = %v, want the two wrap sites", links)
	}
	for _, l := range links {
		if l["line"] == nil || l["file"] == nil {
			t.Errorf("link without position: %v", l)
		}
	}
	if got := errorLinks(err, 1); len(got) != 1 || got[0]["msg"] != "outer: inner: root" {
		t.Fatalf("limited links = %v", got)
	}
	if got := errorLinks(errors.New("plain"), 8); len(got) != 1 || got[0]["line"] != nil {
		t.Fatalf("plain error links = %v", got)
	}
}

func TestFrames(t *testing.T) {
	if _, ok := frameAt(0); ok {
		t.Error("zero pc has no frame")
	}
	if _, ok := firstAppFrame(nil); ok {
		t.Error("empty stack has no frame")
	}
	for _, tt := range []struct {
		fn   string
		want bool
	}{
		{"log/slog.(*Logger).log", true},
		{"github.com/onterra/onterra-web/internal/log.(*logger).Info", true},
		{"github.com/onterra/onterra-web/internal/log.stackHandler.Handle", false},
		{"github.com/onterra/onterra-web/internal/xerrors.Wrap", true},
		{"github.com/onterra/onterra-web/internal/log.TestFrames", false},
		{"github.com/onterra/onterra-web/internal/compose.(*Composer).Compose", false},
	} {
		if got := machinery(tt.fn); got != tt.want {
			t.Errorf("machinery(%q) = %v", tt.fn, got)
		}
	}
}
