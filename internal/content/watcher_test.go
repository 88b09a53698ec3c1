package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/log"
)

type spyWatcherMetrics struct {
	mu      sync.Mutex
	reloads int
	errs    []string
	changes map[string]int
}

func (s *spyWatcherMetrics) IncWatcherReloads() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
}

func (s *spyWatcherMetrics) IncWatcherError(errType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errType)
}

func (s *spyWatcherMetrics) ObserveReloadDuration(float64) {}

func (s *spyWatcherMetrics) IncContentChange(contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changes == nil {
		s.changes = map[string]int{}
	}
	s.changes[contentType]++
}

func snap(t *testing.T, fsys fstest.MapFS) *Snapshot {
	t.Helper()
	s, err := LoadSnapshot(fsys)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	return s
}

func TestDiff(t *testing.T) {
	before := fstest.MapFS{
		"navigation/main.json": {Data: []byte(`{"items":[]}`)},
		"legalPage/a.json":     {Data: []byte(`{"title":"Privacy","slug":{"current":"privacy-policy"}}`)},
		"legalPage/b.json":     {Data: []byte(`{"title":"Terms","slug":{"current":"terms"}}`)},
		"teamMember/ada.json":  {Data: []byte(`{"name":"Ada"}`)},
	}
	after := fstest.MapFS{
		"navigation/main.json": {Data: []byte(`{"items":[]}`)},
		"legalPage/a.json":     {Data: []byte(`{"title":"Privacy","slug":{"current":"privacy"}}`)},
		"legalPage/b.json":     {Data: []byte(`{"title":"Terms of Service","slug":{"current":"terms"}}`)},
		"heroSection/h.json":   {Data: []byte(`{"heading":"Hi"}`)},
	}

	got := Diff(snap(t, before), snap(t, after))
	want := []Change{
		{Type: cms.HeroSection, ID: "heroSection.h", Op: OpAdded},
		{Type: cms.LegalPage, ID: "legalPage.a", Slug: "privacy", Op: OpModified},
		{Type: cms.LegalPage, ID: "legalPage.a", Slug: "privacy-policy", Op: OpRemoved},
		{Type: cms.LegalPage, ID: "legalPage.b", Slug: "terms", Op: OpModified},
		{Type: cms.TeamMember, ID: "teamMember.ada", Op: OpRemoved},
	}
	if len(got) != len(want) {
		t.Fatalf("Diff = %+v\nwant %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDiff_NilPrev(t *testing.T) {
	if got := Diff(nil, snap(t, seedFS())); got != nil {
		t.Fatalf("Diff(nil, s) = %v, want nil", got)
	}
}

func TestWatcher_ReloadOnce(t *testing.T) {
	fsys := seedFS()
	store := NewStore(fsys)
	if _, _, err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	spy := &spyWatcherMetrics{}
	var got [][]Change
	w := NewWatcher(WatcherOptions{
		Logger:  log.Nop(),
		Store:   store,
		Metrics: spy,
		OnChange: func(_ context.Context, c []Change) {
			got = append(got, c)
		},
	})

	// unchanged tree: no callback
	if changes := w.reloadOnce(t.Context()); changes != nil {
		t.Fatalf("changes = %v, want none", changes)
	}

	fsys["heroSection/hero.yaml"] = &fstest.MapFile{Data: []byte("heading: Invest with purpose\n")}
	changes := w.reloadOnce(t.Context())
	if len(changes) != 1 || changes[0].Type != cms.HeroSection || changes[0].Op != OpAdded {
		t.Fatalf("changes = %+v", changes)
	}
	if len(got) != 1 {
		t.Fatalf("OnChange calls = %d, want 1", len(got))
	}
	if spy.reloads != 2 || spy.changes["heroSection"] != 1 {
		t.Fatalf("metrics = %+v", spy)
	}
}

func TestWatcher_ReloadErrorKeepsContent(t *testing.T) {
	fsys := seedFS()
	store := NewStore(fsys)
	_, _, _ = store.Reload()
	spy := &spyWatcherMetrics{}
	called := false
	w := NewWatcher(WatcherOptions{Store: store, Metrics: spy, OnChange: func(context.Context, []Change) { called = true }})

	fsys["navigation/bad.json"] = &fstest.MapFile{Data: []byte(`{`)}
	if changes := w.reloadOnce(t.Context()); changes != nil {
		t.Fatalf("changes = %v", changes)
	}
	if called {
		t.Fatal("OnChange called after failed reload")
	}
	if len(spy.errs) != 1 || spy.errs[0] != "load" {
		t.Fatalf("errors = %v", spy.errs)
	}
	if err := store.ReadyErr(); err != nil {
		t.Fatalf("store lost content: %v", err)
	}
}

func TestWatcher_OnChangePanicContained(t *testing.T) {
	fsys := seedFS()
	store := NewStore(fsys)
	_, _, _ = store.Reload()
	w := NewWatcher(WatcherOptions{Store: store, OnChange: func(context.Context, []Change) {
		panic(errors.New("boom"))
	}})

	delete(fsys, "navigation/main.yaml")
	changes := w.reloadOnce(t.Context())
	if len(changes) != 1 || changes[0].Op != OpRemoved {
		t.Fatalf("changes = %+v", changes)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(fstest.MapFS{})
	w := NewWatcher(WatcherOptions{Store: store, Dir: dir})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}
