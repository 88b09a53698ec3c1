package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/onterra/onterra-web/internal/assets"
	"github.com/onterra/onterra-web/internal/backend"
	"github.com/onterra/onterra-web/internal/cfg"
	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/health"
	"github.com/onterra/onterra-web/internal/httpmw"
	"github.com/onterra/onterra-web/internal/httpserver"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/metrics"
	"github.com/onterra/onterra-web/internal/opshttp"
	"github.com/onterra/onterra-web/internal/otelx"
	"github.com/onterra/onterra-web/internal/pagecache"
	"github.com/onterra/onterra-web/internal/prof"
	"github.com/onterra/onterra-web/internal/ratelimit"
	"github.com/onterra/onterra-web/internal/registry"
	"github.com/onterra/onterra-web/internal/revalidate"
	"github.com/onterra/onterra-web/internal/sitehandler"
	"github.com/onterra/onterra-web/internal/sitehttp"
	v "github.com/onterra/onterra-web/internal/version"
	"github.com/onterra/onterra-web/internal/webassets"
)

// contentInfo feeds the X-Content-Backend / X-Registry-Version headers.
type contentInfo struct{ backend, registry string }

func (c contentInfo) ContentBackend() string  { return c.backend }
func (c contentInfo) RegistryVersion() string { return c.registry }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	links := 0
	if conf.IncludeErrorLinks {
		links = conf.MaxErrorLinks
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Component:  "server",
		Version:    vi.Version,
		Commit:     vi.Commit,
		BuildID:    vi.BuildID,
		Level:      lvl,
		StackLevel: stackLvl,
		JSON:       conf.LogJSON,
		ErrorLinks: links,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg
	ctx = log.WithContext(ctx, L)

	// token and secret are redacted by key
	L.Info(ctx, "initializing application",
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"content_backend", conf.ContentBackend,
		"content_watch", conf.ContentWatch,
		"asset_cdn_base", conf.AssetCDNBase,
		"page_ttl", conf.PageTTL.String(),
		"fetch_timeout", conf.FetchTimeout.String(),
		"trusted_proxy_hops", conf.TrustedProxyHops,
		"revalidate_secret_ssm_param", conf.RevalidateSecretSSMParam,
	)

	// Setup pyroscope profiling
	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildID,
			"backend":   conf.ContentBackend,
		},
		Logger: L,
	})
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure: spans go to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)
	m.SetContentBackend(conf.ContentBackend)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	// AWS config is loaded lazily; the fs and sanity backends without an
	// SSM secret never touch AWS.
	awsCfg := sync.OnceValues(func() (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})

	// registry must agree with the composers before anything is served
	reg, err := registry.Default()
	if err != nil {
		L.Error(ctx, err, "invalid registry table")
		os.Exit(1)
	}
	if err := compose.VerifyRegistry(reg); err != nil {
		L.Error(ctx, err, "registry and composers out of lockstep")
		os.Exit(1)
	}
	L.Info(ctx, "registry loaded", "registry_version", reg.Version(), "static_surfaces", len(reg.StaticPaths()))

	be, err := backend.Open(ctx, L, conf, awsCfg, m)
	if err != nil {
		L.Error(ctx, err, "failed to open content backend", "backend", conf.ContentBackend)
		os.Exit(1)
	}

	client, err := content.NewClient(content.Options{
		Transport: be.Transport,
		Timeout:   conf.FetchTimeout,
		Logger:    L,
		Metrics:   m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create content client")
		os.Exit(1)
	}

	composer, err := compose.New(compose.Options{
		Client: client,
		Assets: assets.Resolver{
			CDNBase:   conf.AssetCDNBase,
			ProjectID: conf.SanityProjectID,
			Dataset:   conf.SanityDataset,
		},
		Logger:  L,
		Metrics: m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create composer")
		os.Exit(1)
	}

	pages, err := pagecache.New[sitehandler.Page](pagecache.Options{
		TTL:     conf.PageTTL,
		Logger:  L,
		Metrics: m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create page cache")
		os.Exit(1)
	}

	var label func(context.Context, string, func(context.Context))
	if conf.EnablePyroscope && profErr == nil {
		label = prof.Labeled
	}
	siteHandler, err := sitehandler.New(sitehandler.Options{
		Logger:     L,
		Surfaces:   reg,
		Composer:   composer,
		Cache:      pages,
		Metrics:    m,
		FallbackFS: webassets.FallbackFS(),
		Prefix:     sitehttp.PagesPrefix,
		Label:      label,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create site handler")
		os.Exit(1)
	}

	secret := conf.RevalidateSecret
	if conf.RevalidateSecretSSMParam != "" {
		secret, err = loadSSMSecret(ctx, awsCfg, conf.RevalidateSecretSSMParam)
		if err != nil {
			// without the secret every webhook would be rejected
			L.Error(ctx, err, "failed to load revalidate secret", "param", conf.RevalidateSecretSSMParam)
			os.Exit(1)
		}
	}
	dispatcher, err := revalidate.New(revalidate.Options{
		Registry:    reg,
		Invalidator: pages,
		Secret:      secret,
		Logger:      L,
		Metrics:     m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create revalidation dispatcher")
		os.Exit(1)
	}

	// edits on disk revalidate exactly like a webhook would
	if conf.ContentWatch && be.Store != nil {
		watcher := content.NewWatcher(content.WatcherOptions{
			Logger:   L,
			Store:    be.Store,
			Dir:      be.Dir,
			OnChange: dispatcher.OnChanges,
			Metrics:  m,
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				L.Error(ctx, err, "content watcher exited")
			}
		}()
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), be.Readiness)

	// public limiter covers every route; the webhook gets a stricter one on top
	var publicLimitMW func(next http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		publicLimitMW = newLimiter(ctx, L, m, "public", conf.RateLimitRPS, conf.RateLimitBurst).Middleware
	}
	revalidateLimiter := newLimiter(ctx, L, m, "revalidate", conf.RevalidateRateRPS, conf.RevalidateRateBurst)

	routes := sitehttp.New(siteHandler, dispatcher, revalidateLimiter.Middleware)

	siteHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHTTPPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  publicLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		ContentInfo:  contentInfo{backend: be.Name, registry: reg.Version()},
		APIRoutes:    routes.RegisterRoutes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// admin listener: metrics, health, pprof and read-only debug views.
	// opshttp rejects public peers in case the security group is ever
	// misconfigured.
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		Registry:    reg,
		PageCache:   pages,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil && !errors.Is(err, errNoNotifySocket) {
		// worst case systemd kills us after its start timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "err", err)
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops routing to us
	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain", drainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "site http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

// drainPeriod covers the load balancer's unhealthy threshold.
const drainPeriod = 30 * time.Second

func newLimiter(ctx context.Context, L log.Logger, m *metrics.ServerMetrics, name string, rps float64, burst int) *ratelimit.Limiter {
	l, err := ratelimit.New(ctx, ratelimit.Options{
		Name:      name,
		PerSecond: rps,
		Burst:     burst,
		Logger:    L,
		Metrics:   m,
	})
	if err != nil {
		L.Error(ctx, err, "invalid rate limit settings", "limiter", name)
		os.Exit(1)
	}
	return l
}

func loadSSMSecret(ctx context.Context, awsCfg func() (aws.Config, error), param string) (string, error) {
	ac, err := awsCfg()
	if err != nil {
		return "", err
	}
	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return revalidate.LoadSecret(c, ssm.NewFromConfig(ac), param)
}
