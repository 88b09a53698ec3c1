package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/onterra/onterra-web/internal/log"
)

// Content store backends.
const (
	BackendSanity = "sanity"
	BackendS3     = "s3"
	BackendFS     = "fs"
)

// EnvPrefix is prepended to upper-cased flag names by FillFromEnv in main.
const EnvPrefix = "ONTERRA_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	ContentBackend   string
	SanityProjectID  string
	SanityDataset    string
	SanityAPIVersion string
	SanityToken      string
	SanityUseCDN     bool
	ContentS3Bucket  string
	ContentS3Prefix  string
	ContentDir       string
	ContentWatch     bool
	AssetCDNBase     string
	FetchTimeout     time.Duration

	RevalidateSecret         string
	RevalidateSecretSSMParam string

	PageTTL time.Duration

	TrustedProxyHops    int
	RateLimitRPS        float64
	RateLimitBurst      int
	RevalidateRateRPS   float64
	RevalidateRateBurst int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")

	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.ContentBackend, "content-backend", BackendFS, "content store: sanity|s3|fs")
	fs.StringVar(&c.SanityProjectID, "sanity-project-id", "", "sanity project id")
	fs.StringVar(&c.SanityDataset, "sanity-dataset", "production", "sanity dataset")
	fs.StringVar(&c.SanityAPIVersion, "sanity-api-version", "2024-01-01", "sanity query API version (YYYY-MM-DD)")
	fs.StringVar(&c.SanityToken, "sanity-token", "", "sanity read token (optional for public datasets)")
	fs.BoolVar(&c.SanityUseCDN, "sanity-use-cdn", false, "query the sanity API CDN instead of the live API")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "s3 bucket holding the dataset export")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "content/export", "s3 prefix (key) of the dataset export")
	fs.StringVar(&c.ContentDir, "content-dir", "", "content directory for the fs backend (empty: embedded seed content)")
	fs.BoolVar(&c.ContentWatch, "content-watch", false, "watch content-dir and revalidate on change")
	fs.StringVar(&c.AssetCDNBase, "asset-cdn-base", "https://cdn.sanity.io", "base URL for resolved image and file assets")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", 5*time.Second, "per-query content fetch timeout")

	fs.StringVar(&c.RevalidateSecret, "revalidate-secret", "", "shared secret for POST /revalidate")
	fs.StringVar(&c.RevalidateSecretSSMParam, "revalidate-secret-ssm-param", "", "ssm SecureString parameter holding the revalidate secret")

	fs.DurationVar(&c.PageTTL, "page-ttl", 5*time.Minute, "cached view-model lifetime")

	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 1, "reverse proxies in front of the server (0..10)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-IP requests per second on the public listener (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-IP burst on the public listener")
	fs.Float64Var(&c.RevalidateRateRPS, "revalidate-rate-rps", 1, "per-IP requests per second on /revalidate")
	fs.IntVar(&c.RevalidateRateBurst, "revalidate-rate-burst", 5, "per-IP burst on /revalidate")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				// secrets never reach the log
				logf("flag -%s: cli value overrides env %s", f.Name, key)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s: %v", f.Name, key, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if !isHTTPURL(c.PyroServer) {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Content store
	switch c.ContentBackend {
	case BackendSanity:
		if c.SanityProjectID == "" {
			errs = append(errs, fmt.Errorf("SANITY_PROJECT_ID required when CONTENT_BACKEND=sanity"))
		}
		if c.SanityDataset == "" {
			errs = append(errs, fmt.Errorf("SANITY_DATASET required when CONTENT_BACKEND=sanity"))
		}
		if _, err := time.Parse(time.DateOnly, c.SanityAPIVersion); err != nil {
			errs = append(errs, fmt.Errorf("SANITY_API_VERSION must be YYYY-MM-DD (got %q)", c.SanityAPIVersion))
		}
	case BackendS3:
		if c.ContentS3Bucket == "" {
			errs = append(errs, fmt.Errorf("CONTENT_S3_BUCKET required when CONTENT_BACKEND=s3"))
		}
	case BackendFS:
	default:
		errs = append(errs, fmt.Errorf("invalid CONTENT_BACKEND %q (must be sanity|s3|fs)", c.ContentBackend))
	}
	if c.ContentWatch && (c.ContentBackend != BackendFS || c.ContentDir == "") {
		errs = append(errs, fmt.Errorf("CONTENT_WATCH requires CONTENT_BACKEND=fs and CONTENT_DIR"))
	}
	if !isHTTPURL(c.AssetCDNBase) {
		errs = append(errs, fmt.Errorf("ASSET_CDN_BASE must be a URL (got %q)", c.AssetCDNBase))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive (got %s)", c.FetchTimeout))
	}

	// Revalidation
	if c.RevalidateSecret != "" && c.RevalidateSecretSSMParam != "" {
		errs = append(errs, fmt.Errorf("set only one of REVALIDATE_SECRET and REVALIDATE_SECRET_SSM_PARAM"))
	}
	if c.PageTTL <= 0 {
		errs = append(errs, fmt.Errorf("PAGE_TTL must be positive (got %s)", c.PageTTL))
	}

	// Edge
	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXY_HOPS must be 0..10 (got %d)", c.TrustedProxyHops))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must not be negative (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be at least 1 (got %d)", c.RateLimitBurst))
	}
	if c.RevalidateRateRPS <= 0 || c.RevalidateRateBurst < 1 {
		errs = append(errs, fmt.Errorf("REVALIDATE_RATE_RPS and REVALIDATE_RATE_BURST must be positive"))
	}

	return errors.Join(errs...)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
