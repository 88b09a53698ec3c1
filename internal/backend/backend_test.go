package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/onterra/onterra-web/internal/cfg"
	"github.com/onterra/onterra-web/internal/content"
)

type spyMetrics struct {
	docs   int
	loaded time.Time
}

func (s *spyMetrics) SetContentDocuments(n int)             { s.docs = n }
func (s *spyMetrics) SetContentLoadedTimestamp(t time.Time) { s.loaded = t }

func TestOpen_FSSeed(t *testing.T) {
	m := &spyMetrics{}
	b, err := Open(t.Context(), nil, cfg.App{ContentBackend: cfg.BackendFS}, nil, m)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Name != cfg.BackendFS || b.Store == nil || b.Transport == nil {
		t.Fatalf("unexpected backend: %+v", b)
	}
	if err := b.Readiness.Check(t.Context()); err != nil {
		t.Fatalf("seed store should be ready: %v", err)
	}
	if m.docs == 0 || m.loaded.IsZero() {
		t.Fatalf("metrics not set: %+v", m)
	}
	raw, err := b.Transport.Query(t.Context(), mustQuery(t, "siteSettings"), nil)
	if err != nil || raw == nil {
		t.Fatalf("siteSettings query = %s, %v", raw, err)
	}
}

func TestOpen_FSBadTreeIsNotReady(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "notAType"), 0o755); err != nil {
		t.Fatal(err)
	}
	b, err := Open(t.Context(), nil, cfg.App{ContentBackend: cfg.BackendFS, ContentDir: dir}, nil, nil)
	if err != nil {
		t.Fatalf("Open should not fail on a bad tree: %v", err)
	}
	if b.Dir != dir {
		t.Fatalf("Dir = %q", b.Dir)
	}
	if err := b.Readiness.Check(t.Context()); err == nil {
		t.Fatal("expected readiness failure without a loaded snapshot")
	}
}

func TestOpen_FSDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "siteSettings"), 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `{"_id":"siteSettings","_type":"siteSettings","title":"Onterra"}`
	if err := os.WriteFile(filepath.Join(dir, "siteSettings", "site.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Open(t.Context(), nil, cfg.App{ContentBackend: cfg.BackendFS, ContentDir: dir}, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Readiness.Check(t.Context()); err != nil {
		t.Fatalf("readiness: %v", err)
	}
}

func TestOpen_Sanity(t *testing.T) {
	b, err := Open(t.Context(), nil, cfg.App{
		ContentBackend:   cfg.BackendSanity,
		SanityProjectID:  "abc123",
		SanityDataset:    "production",
		SanityAPIVersion: "2024-01-01",
	}, nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Name != cfg.BackendSanity || b.Store != nil {
		t.Fatalf("unexpected backend: %+v", b)
	}
	if err := b.Readiness.Check(t.Context()); err != nil {
		t.Fatalf("remote backends are always ready: %v", err)
	}
}

func TestOpen_S3NeedsAWSConfig(t *testing.T) {
	conf := cfg.App{ContentBackend: cfg.BackendS3, ContentS3Bucket: "bucket", ContentS3Prefix: "export"}
	if _, err := Open(t.Context(), nil, conf, nil, nil); err == nil {
		t.Fatal("expected error without aws config")
	}

	boom := errors.New("no credentials")
	_, err := Open(t.Context(), nil, conf, func() (aws.Config, error) { return aws.Config{}, boom }, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}

	b, err := Open(t.Context(), nil, conf, func() (aws.Config, error) { return aws.Config{Region: "us-east-1"}, nil }, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Name != cfg.BackendS3 {
		t.Fatalf("Name = %q", b.Name)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), nil, cfg.App{ContentBackend: "ftp"}, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func mustQuery(t *testing.T, id content.QueryID) content.Query {
	t.Helper()
	q, ok := content.Lookup(id)
	if !ok {
		t.Fatalf("query %q not in catalogue", id)
	}
	return q
}
