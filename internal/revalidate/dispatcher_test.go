package revalidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/pagecache"
	"github.com/onterra/onterra-web/internal/registry"
)

const testSecret = "s3cr3t-webhook-value"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---- fakes ----

type logEntry struct {
	level string
	msg   string
	kv    []any
}

// spyLogger records every call for assertions.
type spyLogger struct {
	log.Logger
	mu      sync.Mutex
	entries []logEntry
}

func newSpyLogger() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(kv ...any) log.Logger { return s }

func (s *spyLogger) record(level, msg string, kv []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, logEntry{level, msg, kv})
}

func (s *spyLogger) Info(_ context.Context, msg string, kv ...any)  { s.record("info", msg, kv) }
func (s *spyLogger) Warn(_ context.Context, msg string, kv ...any)  { s.record("warn", msg, kv) }
func (s *spyLogger) Debug(_ context.Context, msg string, kv ...any) { s.record("debug", msg, kv) }
func (s *spyLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	s.record("error", msg, append(kv, "err", err))
}

func (s *spyLogger) at(level string) []logEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []logEntry
	for _, e := range s.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func (s *spyLogger) dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprint(s.entries)
}

// recordingInvalidator records commands and forwards them to an optional
// cache.
type recordingInvalidator struct {
	next     Invalidator
	mu       sync.Mutex
	commands []string
	panics   bool
}

func (r *recordingInvalidator) InvalidatePath(p string) int {
	if r.panics {
		panic("cache exploded at " + p)
	}
	r.mu.Lock()
	r.commands = append(r.commands, "path "+p)
	r.mu.Unlock()
	if r.next != nil {
		return r.next.InvalidatePath(p)
	}
	return 0
}

func (r *recordingInvalidator) InvalidateTag(t string) int {
	r.mu.Lock()
	r.commands = append(r.commands, "tag "+t)
	r.mu.Unlock()
	if r.next != nil {
		return r.next.InvalidateTag(t)
	}
	return 0
}

func (r *recordingInvalidator) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.commands
	r.commands = nil
	return out
}

type spyMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *spyMetrics) IncRevalidation(outcome, branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	s.counts[outcome+"/"+branch]++
}

// ---- fixture ----

var cachedPaths = []string{
	"/",
	"/about",
	"/about/team",
	"/contact",
	"/legal",
	"/legal/privacy-policy",
	"/legal/terms-of-service",
}

type fixture struct {
	d       *Dispatcher
	cache   *pagecache.Cache[string]
	inv     *recordingInvalidator
	logger  *spyLogger
	metrics *spyMetrics
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	cache, err := pagecache.New[string](pagecache.Options{TTL: time.Hour})
	if err != nil {
		t.Fatalf("pagecache: %v", err)
	}
	f := &fixture{
		cache:   cache,
		inv:     &recordingInvalidator{next: cache},
		logger:  newSpyLogger(),
		metrics: &spyMetrics{},
	}
	f.d, err = New(Options{
		Registry:    reg,
		Invalidator: f.inv,
		Secret:      secret,
		Logger:      f.logger,
		Metrics:     f.metrics,
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, p := range cachedPaths {
		s, _, ok := reg.Match(p)
		if !ok {
			t.Fatalf("no surface for %s", p)
		}
		_, _, err := cache.Get(t.Context(), p, s.Tags, func(context.Context) (string, error) {
			return "vm " + p, nil
		})
		if err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}
	return f
}

func (f *fixture) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/revalidate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.d.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) cached(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, p := range cachedPaths {
		if e, ok := f.cache.Peek(p); ok {
			if e.Value != "vm "+p {
				t.Fatalf("%s holds %q", p, e.Value)
			}
			out = append(out, p)
		}
	}
	return out
}

func without(paths ...string) []string {
	return slices.DeleteFunc(slices.Clone(cachedPaths), func(p string) bool { return slices.Contains(paths, p) })
}

func body(secret, typ, slug string) string {
	b, _ := json.Marshal(Request{Secret: secret, Type: typ, Slug: slug})
	return string(b)
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

// ---- options ----

func TestNew_Validation(t *testing.T) {
	reg, _ := registry.Default()
	if _, err := New(Options{Invalidator: &recordingInvalidator{}}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("missing registry: err = %v", err)
	}
	if _, err := New(Options{Registry: reg}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("missing invalidator: err = %v", err)
	}
}

// ---- authentication ----

func TestServeHTTP_WrongSecretRejected(t *testing.T) {
	f := newFixture(t, testSecret)

	rec := f.post(t, body("wrong", "heroSection", ""))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if m := decodeMap(t, rec); m["message"] != "Invalid secret" || len(m) != 1 {
		t.Fatalf("body = %v", m)
	}
	if got := f.cached(t); !slices.Equal(got, cachedPaths) {
		t.Fatalf("cached after rejected request = %v, want all", got)
	}
	if cmds := f.inv.take(); len(cmds) != 0 {
		t.Fatalf("invalidations issued: %v", cmds)
	}
	if len(f.logger.at("warn")) != 1 {
		t.Fatalf("want one warn log, got %s", f.logger.dump())
	}
	if strings.Contains(f.logger.dump(), "wrong") || strings.Contains(f.logger.dump(), "heroSection") {
		t.Fatalf("request body echoed into logs: %s", f.logger.dump())
	}
	if f.metrics.counts["rejected/none"] != 1 {
		t.Fatalf("metrics = %v", f.metrics.counts)
	}
}

func TestServeHTTP_MalformedBodyRejected(t *testing.T) {
	f := newFixture(t, testSecret)
	for _, b := range []string{"", "{", "[]", `{"secret":42}`, strings.Repeat("x", 100<<10)} {
		if rec := f.post(t, b); rec.Code != http.StatusUnauthorized {
			t.Errorf("body %.20q: status = %d, want 401", b, rec.Code)
		}
	}
	if cmds := f.inv.take(); len(cmds) != 0 {
		t.Fatalf("invalidations issued: %v", cmds)
	}
}

func TestServeHTTP_EmptyConfiguredSecretRejectsAll(t *testing.T) {
	f := newFixture(t, "")
	for _, s := range []string{"", "anything"} {
		if rec := f.post(t, body(s, "heroSection", "")); rec.Code != http.StatusUnauthorized {
			t.Errorf("secret %q: status = %d, want 401", s, rec.Code)
		}
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, testSecret)
	rec := httptest.NewRecorder()
	f.d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/revalidate", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("status = %d allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

// ---- scenarios ----

func TestServeHTTP_HomepageChange(t *testing.T) {
	f := newFixture(t, testSecret)

	rec := f.post(t, body(testSecret, "heroSection", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	m := decodeMap(t, rec)
	if m["revalidated"] != true || m["type"] != "heroSection" || m["now"] != float64(fixedNow.UnixMilli()) {
		t.Fatalf("ack = %v", m)
	}
	if v, ok := m["slug"]; !ok || v != nil {
		t.Fatalf("ack slug = %v, want null", m["slug"])
	}

	if got, want := f.cached(t), without("/"); !slices.Equal(got, want) {
		t.Fatalf("cached = %v, want %v", got, want)
	}
	if f.metrics.counts["ok/specific"] != 1 {
		t.Fatalf("metrics = %v", f.metrics.counts)
	}
}

func TestServeHTTP_LegalPageBySlug(t *testing.T) {
	f := newFixture(t, testSecret)

	rec := f.post(t, body(testSecret, "legalPage", "terms-of-service"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if m := decodeMap(t, rec); m["slug"] != "terms-of-service" {
		t.Fatalf("ack = %v", m)
	}
	// the index lists the page, so it goes too
	got := f.cached(t)
	if want := without("/legal/terms-of-service", "/legal"); !slices.Equal(got, want) {
		t.Fatalf("cached = %v, want %v", got, want)
	}
	if !slices.Contains(got, "/legal/privacy-policy") {
		t.Fatal("sibling legal page evicted")
	}
}

func TestServeHTTP_LegalPageWithoutSlugInvalidatesFamily(t *testing.T) {
	f := newFixture(t, testSecret)

	if rec := f.post(t, body(testSecret, "legalPage", "")); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := without("/legal", "/legal/privacy-policy", "/legal/terms-of-service")
	if got := f.cached(t); !slices.Equal(got, want) {
		t.Fatalf("cached = %v, want %v", got, want)
	}
	for _, c := range f.inv.take() {
		if strings.HasPrefix(c, "path /legal/") {
			t.Fatalf("family invalidation guessed a path: %s", c)
		}
	}
	if f.metrics.counts["ok/family"] != 1 {
		t.Fatalf("metrics = %v", f.metrics.counts)
	}
}

func TestServeHTTP_InvalidSlugTreatedAsAbsent(t *testing.T) {
	f := newFixture(t, testSecret)
	rec := f.post(t, body(testSecret, "legalPage", "../../etc"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if m := decodeMap(t, rec); m["slug"] != nil || strings.Contains(rec.Body.String(), "etc") {
		t.Fatalf("ack echoes the rejected slug: %s", rec.Body.String())
	}
	for _, c := range f.inv.take() {
		if strings.Contains(c, "etc") {
			t.Fatalf("malformed slug reached the cache: %s", c)
		}
	}
	if f.metrics.counts["ok/family"] != 1 {
		t.Fatalf("metrics = %v", f.metrics.counts)
	}
}

func TestServeHTTP_AckEchoesResolvedType(t *testing.T) {
	f := newFixture(t, testSecret)
	rec := f.post(t, body(testSecret, "  legalPage \n", " privacy-policy "))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decodeMap(t, rec)
	if m["type"] != "legalPage" || m["slug"] != "privacy-policy" {
		t.Fatalf("ack = %v", m)
	}
}

func TestServeHTTP_UnknownTypeIsConservative(t *testing.T) {
	f := newFixture(t, testSecret)

	if rec := f.post(t, body(testSecret, "blogPost", "")); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := f.cached(t); len(got) != 0 {
		t.Fatalf("cached after conservative invalidation = %v, want none", got)
	}
	if len(f.logger.at("info")) != 1 {
		t.Fatalf("want one info log, got %s", f.logger.dump())
	}
	if f.metrics.counts["ok/conservative"] != 1 {
		t.Fatalf("metrics = %v", f.metrics.counts)
	}
}

func TestServeHTTP_InternalFailure(t *testing.T) {
	f := newFixture(t, testSecret)
	f.inv.panics = true

	rec := f.post(t, body(testSecret, "aboutPage", ""))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if m := decodeMap(t, rec); m["message"] != "Error revalidating" || len(m) != 1 {
		t.Fatalf("body = %v", m)
	}
	if strings.Contains(rec.Body.String(), "exploded") {
		t.Fatal("internal detail leaked into response")
	}
	errs := f.logger.at("error")
	if len(errs) != 1 || !strings.Contains(fmt.Sprint(errs[0].kv), "exploded") {
		t.Fatalf("error log = %v", errs)
	}
}

// ---- properties ----

func TestRevalidate_Idempotent(t *testing.T) {
	for _, tc := range []struct{ typ, slug string }{
		{"siteSettings", ""},
		{"legalPage", "privacy-policy"},
		{"legalPage", ""},
		{"unknownThing", ""},
	} {
		t.Run(tc.typ+"/"+tc.slug, func(t *testing.T) {
			f := newFixture(t, testSecret)

			if _, err := f.d.Revalidate(t.Context(), tc.typ, tc.slug); err != nil {
				t.Fatalf("Revalidate: %v", err)
			}
			first := f.inv.take()
			after := f.cached(t)

			for range 3 {
				res, err := f.d.Revalidate(t.Context(), tc.typ, tc.slug)
				if err != nil {
					t.Fatalf("Revalidate: %v", err)
				}
				if res.PathsEvicted != 0 || res.TagsEvicted != 0 {
					t.Fatalf("repeat evicted %d paths %d tags", res.PathsEvicted, res.TagsEvicted)
				}
				if got := f.inv.take(); !slices.Equal(got, first) {
					t.Fatalf("commands = %v, want %v", got, first)
				}
				if got := f.cached(t); !slices.Equal(got, after) {
					t.Fatalf("cache state = %v, want %v", got, after)
				}
			}
		})
	}
}

func TestRevalidate_OneCommandPerSurfaceAndTag(t *testing.T) {
	f := newFixture(t, testSecret)
	res, err := f.d.Revalidate(t.Context(), "contactDetails", "")
	if err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	cmds := f.inv.take()
	if len(cmds) != len(res.Resolution.Surfaces)+len(res.Resolution.Tags) {
		t.Fatalf("commands = %v for %+v", cmds, res.Resolution)
	}
	if !slices.Contains(cmds, "path /contact") || !slices.Contains(cmds, "tag contact-data") {
		t.Fatalf("commands = %v", cmds)
	}
}

func TestOnChanges_Deduplicates(t *testing.T) {
	f := newFixture(t, testSecret)
	f.d.OnChanges(t.Context(), []content.Change{
		{Type: cms.TeamMember, ID: "m1", Op: content.OpModified},
		{Type: cms.TeamMember, ID: "m2", Op: content.OpAdded},
		{Type: cms.LegalPage, ID: "l1", Slug: "privacy-policy", Op: content.OpModified},
	})
	cmds := f.inv.take()
	want := []string{"path /about/team", "tag team-data", "path /legal/privacy-policy", "tag legal-index"}
	if !slices.Equal(cmds, want) {
		t.Fatalf("commands = %v, want %v", cmds, want)
	}
	if f.metrics.counts["ok/specific"] != 2 {
		t.Fatalf("metrics = %v", f.metrics.counts)
	}
}

// ---- secret loading ----

type fakeSSM struct {
	out *ssm.GetParameterOutput
	err error
	in  *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestLoadSecret(t *testing.T) {
	ok := &fakeSSM{out: &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String("  hunter2\n")}}}
	got, err := LoadSecret(t.Context(), ok, "/onterra/revalidate-secret")
	if err != nil || got != "hunter2" {
		t.Fatalf("LoadSecret = %q, %v", got, err)
	}
	if !aws.ToBool(ok.in.WithDecryption) || aws.ToString(ok.in.Name) != "/onterra/revalidate-secret" {
		t.Fatalf("input = %+v", ok.in)
	}

	for name, f := range map[string]*fakeSSM{
		"error": {err: errors.New("access denied")},
		"nil":   {out: &ssm.GetParameterOutput{}},
		"blank": {out: &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String("   ")}}},
	} {
		if _, err := LoadSecret(t.Context(), f, "p"); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}
