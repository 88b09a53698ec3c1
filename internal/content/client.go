package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/onterra/onterra-web/internal/cms"
	"github.com/onterra/onterra-web/internal/log"
)

// DefaultFetchTimeout bounds a single round trip to the content store.
const DefaultFetchTimeout = 5 * time.Second

// Transport executes one catalogue query and returns the raw JSON result:
// an object, an array, or null.
type Transport interface {
	Query(ctx context.Context, q Query, params Params) (json.RawMessage, error)
}

// FetchMetrics is implemented by the metrics package.
type FetchMetrics interface {
	ObserveFetch(query, outcome string, seconds float64)
}

var ErrInvalidOptions = errors.New("content: invalid options")

type Options struct {
	Transport Transport
	Timeout   time.Duration
	Logger    log.Logger
	Metrics   FetchMetrics
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultFetchTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
}

func (o Options) validate() error {
	if o.Transport == nil {
		return fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	}
	return nil
}

// Client executes catalogue queries. It does not retry and does not cache.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    log.Logger
	metrics   FetchMetrics
	tracer    trace.Tracer
}

func NewClient(opts Options) (*Client, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Client{
		transport: opts.Transport,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer("onterra/content"),
	}, nil
}

// Fetch runs query id and returns its raw result. A null result is returned
// as (nil, nil).
func (c *Client) Fetch(ctx context.Context, id QueryID, params Params) (json.RawMessage, error) {
	q, ok := Lookup(id)
	if !ok {
		return nil, &FetchError{Query: id, Kind: KindQuery, Err: fmt.Errorf("unknown query %q", id)}
	}
	if q.Shape == BySlug && params[ParamSlug] == "" {
		return nil, &FetchError{Query: id, Kind: KindQuery, Err: ErrNoSlug}
	}

	ctx, span := c.tracer.Start(ctx, "content.fetch", trace.WithAttributes(
		attribute.String("content.query", string(id)),
		attribute.String("content.type", string(q.Type)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.transport.Query(ctx, q, params)
	if err != nil {
		err = c.classify(ctx, id, err)
	} else if raw, err = normalize(raw); err != nil {
		err = &FetchError{Query: id, Kind: KindDecode, Err: err}
	}

	outcome := "ok"
	if err != nil {
		var fe *FetchError
		errors.As(err, &fe)
		outcome = string(fe.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		c.logger.Debug(ctx, "content fetch failed", "query", string(id), "kind", outcome)
	} else if raw == nil {
		outcome = "null"
	}
	if c.metrics != nil {
		c.metrics.ObserveFetch(string(id), outcome, time.Since(start).Seconds())
	}
	return raw, err
}

func (c *Client) classify(ctx context.Context, id QueryID, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	var se *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &FetchError{Query: id, Kind: KindTimeout, Err: err}
	case errors.As(err, &se):
		return &FetchError{Query: id, Kind: KindStatus, Err: err}
	default:
		return &FetchError{Query: id, Kind: KindTransport, Err: err}
	}
}

var jsonNull = []byte("null")

func normalize(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errors.New("malformed JSON result")
	}
	return raw, nil
}

// FetchOne runs a singleton or by-slug query and decodes the result into T.
// A null result yields (nil, nil).
func FetchOne[T cms.Document](ctx context.Context, c *Client, id QueryID, params Params) (*T, error) {
	q, err := checkTarget[T](id, Singleton, BySlug)
	if err != nil {
		return nil, err
	}
	raw, err := c.Fetch(ctx, id, params)
	if err != nil || raw == nil {
		return nil, err
	}
	doc, err := decodeDoc[T](q, raw)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchList runs a list query and decodes every element into T. A null
// result yields an empty slice.
func FetchList[T cms.Document](ctx context.Context, c *Client, id QueryID, params Params) ([]T, error) {
	q, err := checkTarget[T](id, List)
	if err != nil {
		return nil, err
	}
	raw, err := c.Fetch(ctx, id, params)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []T{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &FetchError{Query: id, Kind: KindDecode, Err: err}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		doc, err := decodeDoc[T](q, item)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func checkTarget[T cms.Document](id QueryID, shapes ...Shape) (Query, error) {
	q, ok := Lookup(id)
	if !ok {
		return Query{}, &FetchError{Query: id, Kind: KindQuery, Err: fmt.Errorf("unknown query %q", id)}
	}
	var zero T
	if zero.DocType() != q.Type {
		return Query{}, &FetchError{Query: id, Kind: KindQuery, Err: fmt.Errorf("query yields %s, not %s", q.Type, zero.DocType())}
	}
	for _, s := range shapes {
		if q.Shape == s {
			return q, nil
		}
	}
	return Query{}, &FetchError{Query: id, Kind: KindQuery, Err: fmt.Errorf("query shape %s not supported here", q.Shape)}
}

func decodeDoc[T cms.Document](q Query, raw json.RawMessage) (T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, &FetchError{Query: q.ID, Kind: KindDecode, Err: err}
	}
	if err := doc.Validate(); err != nil {
		return doc, &FetchError{Query: q.ID, Kind: KindInvalid, Err: err}
	}
	return doc, nil
}
