package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultSanityAPIVersion = "2024-01-01"

	// maxResponseBytes caps a single query response.
	maxResponseBytes = 8 << 20
)

type SanityOptions struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	// Token is sent as a bearer token when set. Required for private datasets.
	Token  string
	UseCDN bool
	// BaseURL overrides the derived https://{project}.api(cdn).sanity.io host.
	BaseURL    string
	HTTPClient *http.Client
}

// SanityTransport runs catalogue queries against the Sanity HTTP query API.
type SanityTransport struct {
	base    *url.URL
	dataset string
	version string
	token   string
	client  *http.Client
}

func NewSanityTransport(opts SanityOptions) (*SanityTransport, error) {
	if opts.ProjectID == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: sanity project id is required", ErrInvalidOptions)
	}
	if opts.Dataset == "" {
		return nil, fmt.Errorf("%w: sanity dataset is required", ErrInvalidOptions)
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultSanityAPIVersion
	}
	raw := opts.BaseURL
	if raw == "" {
		host := "api"
		if opts.UseCDN && opts.Token == "" {
			host = "apicdn"
		}
		raw = fmt.Sprintf("https://%s.%s.sanity.io", opts.ProjectID, host)
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: sanity base url: %v", ErrInvalidOptions, err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(DefaultHTTPConfig())
	}
	return &SanityTransport{
		base:    base,
		dataset: opts.Dataset,
		version: strings.TrimPrefix(opts.APIVersion, "v"),
		token:   opts.Token,
		client:  opts.HTTPClient,
	}, nil
}

func (t *SanityTransport) queryURL(q Query, params Params) string {
	u := *t.base
	u.Path = fmt.Sprintf("/v%s/data/query/%s", t.version, url.PathEscape(t.dataset))
	v := url.Values{}
	v.Set("query", q.GROQ())
	v.Set("perspective", "published")
	for k, p := range params {
		// GROQ params are JSON encoded
		b, _ := json.Marshal(p)
		v.Set("$"+k, string(b))
	}
	u.RawQuery = v.Encode()
	return u.String()
}

func (t *SanityTransport) Query(ctx context.Context, q Query, params Params) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.queryURL(q, params), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return nil, &FetchError{Query: q.ID, Kind: KindDecode, Err: err}
	}
	return env.Result, nil
}

// HTTPConfig tunes the pooled client used for outbound store calls. The
// per-fetch deadline comes from the Client's context, not from here.
type HTTPConfig struct {
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshake        time.Duration
	ResponseHeader      time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		DialTimeout:         3 * time.Second,
		KeepAlive:           30 * time.Second,
		TLSHandshake:        3 * time.Second,
		ResponseHeader:      5 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
	}
}

// NewHTTPClient returns a pooled client whose transport is traced with otelhttp.
func NewHTTPClient(cfg HTTPConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshake,
		ResponseHeaderTimeout: cfg.ResponseHeader,
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(tr,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "sanity " + r.Method
			}),
		),
	}
}
