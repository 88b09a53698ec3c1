// Package metrics owns the process's Prometheus registry. Every other
// package reports through a small interface of its own; *ServerMetrics
// implements all of them.
//
// Labels are bounded: route patterns and surface patterns, never raw paths
// or slugs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onterra/onterra-web/internal/version"
)

const namespace = "onterra"

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets    = prometheus.ExponentialBuckets(256, 4, 9)
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	build     *prometheus.GaugeVec
	profiling prometheus.Gauge

	// http
	inflight     prometheus.Gauge
	requests     *prometheus.CounterVec
	serverErrors *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	respSize     *prometheus.HistogramVec
	panics       prometheus.Counter
	limited      *prometheus.CounterVec
	limiterFull  *prometheus.CounterVec

	// content store
	backend         *prometheus.GaugeVec
	documents       prometheus.Gauge
	loadedAt        prometheus.Gauge
	fetches         *prometheus.HistogramVec
	reloads         prometheus.Counter
	reloadDuration  prometheus.Histogram
	watcherErrors   *prometheus.CounterVec
	documentChanges *prometheus.CounterVec

	// pages
	compositions        *prometheus.CounterVec
	compositionDuration *prometheus.HistogramVec
	cacheLookups        *prometheus.CounterVec
	invalidations       *prometheus.CounterVec
	evictions           *prometheus.CounterVec
	cacheEntries        prometheus.Gauge
	degraded            *prometheus.CounterVec
	revalidations       *prometheus.CounterVec
}

// New builds a registry with the Go and process collectors plus every
// application metric.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	gauge := func(sub, name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help})
	}
	counter := func(sub, name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help})
	}
	counterVec := func(sub, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help}, labels)
	}
	histVec := func(sub, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Subsystem: sub, Name: name, Help: help, Buckets: buckets}, labels)
	}

	m := &ServerMetrics{
		reg: reg,

		build: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "build_info",
			Help: "Build metadata; the value is always 1.",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profiling: gauge("", "profiling_active", "1 while continuous profiling is running."),

		inflight:     gauge("http", "inflight_requests", "Requests currently being served."),
		requests:     counterVec("http", "requests_total", "Requests by method, route and status.", "method", "route", "status"),
		serverErrors: counterVec("http", "server_errors_total", "5xx responses by method and route.", "method", "route"),
		duration:     histVec("http", "request_duration_seconds", "Request latency by method and route.", latencyBuckets, "method", "route"),
		respSize:     histVec("http", "response_size_bytes", "Response body size by method and route.", sizeBuckets, "method", "route"),
		panics:       counter("http", "panics_total", "Handler panics recovered."),
		limited:      counterVec("http", "rate_limited_total", "Requests rejected by a rate limiter.", "limiter"),
		limiterFull:  counterVec("http", "rate_limiter_full_total", "Times a rate limiter stopped tracking new clients.", "limiter"),

		backend:         f.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "content", Name: "backend_info", Help: "Configured content backend; the value is always 1."}, []string{"backend"}),
		documents:       gauge("content", "documents", "Documents in the local snapshot."),
		loadedAt:        gauge("content", "loaded_timestamp_seconds", "When the local snapshot was last loaded."),
		fetches:         histVec("content", "fetch_duration_seconds", "Content queries by query id and outcome.", latencyBuckets[:10], "query", "outcome"),
		reloads:         counter("content", "reloads_total", "Successful local snapshot reloads."),
		reloadDuration:  f.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Subsystem: "content", Name: "reload_duration_seconds", Help: "Time to load the local snapshot.", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}}),
		watcherErrors:   counterVec("content", "watcher_errors_total", "Watcher failures by kind.", "kind"),
		documentChanges: counterVec("content", "document_changes_total", "Local document changes by content type.", "type"),

		compositions:        counterVec("page", "compositions_total", "View-model compositions by surface and outcome.", "surface", "outcome"),
		compositionDuration: histVec("page", "composition_duration_seconds", "View-model composition latency by surface.", latencyBuckets, "surface"),
		cacheLookups:        counterVec("page", "cache_lookups_total", "Page cache lookups by result.", "result"),
		invalidations:       counterVec("page", "cache_invalidations_total", "Invalidation commands by kind.", "kind"),
		evictions:           counterVec("page", "cache_evictions_total", "Entries evicted by invalidation kind.", "kind"),
		cacheEntries:        gauge("page", "cache_entries", "Entries in the page cache."),
		degraded:            counterVec("page", "degraded_responses_total", "Pages served degraded by surface and mode.", "surface", "mode"),
		revalidations:       counterVec("", "revalidations_total", "Revalidation webhooks by outcome and registry branch.", "outcome", "branch"),
	}
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry for scraping.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

// Registry exposes the underlying registry, mostly for tests.
func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.build.WithLabelValues(app, component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, dirty, vi.GoVersion).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.profiling.Set(v)
}

// httpserver.Options.OnPanic

func (m *ServerMetrics) IncHTTPPanic() { m.panics.Inc() }

// ratelimit.Metrics

func (m *ServerMetrics) IncRateLimitDenied(limiter string) { m.limited.WithLabelValues(limiter).Inc() }

func (m *ServerMetrics) IncRateLimitCapacity(limiter string) {
	m.limiterFull.WithLabelValues(limiter).Inc()
}

// content and backend

func (m *ServerMetrics) SetContentBackend(name string) {
	m.backend.Reset()
	m.backend.WithLabelValues(name).Set(1)
}

func (m *ServerMetrics) SetContentDocuments(n int) { m.documents.Set(float64(n)) }

func (m *ServerMetrics) SetContentLoadedTimestamp(t time.Time) { m.loadedAt.Set(float64(t.Unix())) }

func (m *ServerMetrics) ObserveFetch(query, outcome string, seconds float64) {
	m.fetches.WithLabelValues(query, outcome).Observe(seconds)
}

func (m *ServerMetrics) IncWatcherReloads() { m.reloads.Inc() }

func (m *ServerMetrics) IncWatcherError(kind string) { m.watcherErrors.WithLabelValues(kind).Inc() }

func (m *ServerMetrics) ObserveReloadDuration(seconds float64) { m.reloadDuration.Observe(seconds) }

func (m *ServerMetrics) IncContentChange(contentType string) {
	m.documentChanges.WithLabelValues(contentType).Inc()
}

// compose, pagecache, sitehandler and revalidate

func (m *ServerMetrics) IncComposition(surface, outcome string) {
	m.compositions.WithLabelValues(surface, outcome).Inc()
}

func (m *ServerMetrics) ObserveComposition(surface string, seconds float64) {
	m.compositionDuration.WithLabelValues(surface).Observe(seconds)
}

func (m *ServerMetrics) IncCacheLookup(result string) { m.cacheLookups.WithLabelValues(result).Inc() }

func (m *ServerMetrics) IncCacheInvalidation(kind string, evicted int) {
	m.invalidations.WithLabelValues(kind).Inc()
	m.evictions.WithLabelValues(kind).Add(float64(evicted))
}

func (m *ServerMetrics) SetCacheEntries(n int) { m.cacheEntries.Set(float64(n)) }

func (m *ServerMetrics) IncDegraded(surface, mode string) { m.degraded.WithLabelValues(surface, mode).Inc() }

func (m *ServerMetrics) IncRevalidation(outcome, branch string) {
	m.revalidations.WithLabelValues(outcome, branch).Inc()
}
