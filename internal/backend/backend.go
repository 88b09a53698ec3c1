// Package backend opens the content store selected by configuration.
package backend

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onterra/onterra-web/internal/cfg"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/health"
	"github.com/onterra/onterra-web/internal/log"
	"github.com/onterra/onterra-web/internal/webassets"
	"github.com/onterra/onterra-web/internal/xerrors"
)

// Metrics is implemented by the metrics package. Nil is allowed.
type Metrics interface {
	SetContentDocuments(n int)
	SetContentLoadedTimestamp(t time.Time)
}

// Backend is the configured content store plus what callers need around it.
type Backend struct {
	Name      string
	Transport content.Transport
	// Readiness gates the public listener on content being available.
	Readiness health.Probe
	// Store and Dir are set for the fs backend only.
	Store *content.Store
	Dir   string
}

// AWSConfigFunc returns the shared AWS config. It is only called for the s3
// backend.
type AWSConfigFunc func() (aws.Config, error)

// Open builds the transport selected by conf.ContentBackend. The sanity
// HTTP client is created here so every caller gets the same pooling and
// timeouts.
func Open(ctx context.Context, L log.Logger, conf cfg.App, awsCfg AWSConfigFunc, m Metrics) (*Backend, error) {
	if L == nil {
		L = log.Nop()
	}
	switch conf.ContentBackend {
	case cfg.BackendSanity:
		t, err := content.NewSanityTransport(content.SanityOptions{
			ProjectID:  conf.SanityProjectID,
			Dataset:    conf.SanityDataset,
			APIVersion: conf.SanityAPIVersion,
			Token:      conf.SanityToken,
			UseCDN:     conf.SanityUseCDN,
			HTTPClient: content.NewHTTPClient(content.DefaultHTTPConfig()),
		})
		if err != nil {
			return nil, err
		}
		L.Info(ctx, "content backend: sanity",
			"project_id", conf.SanityProjectID,
			"dataset", conf.SanityDataset,
			"api_version", conf.SanityAPIVersion,
			"use_cdn", conf.SanityUseCDN,
		)
		return &Backend{Name: cfg.BackendSanity, Transport: t, Readiness: health.Fixed(true, "")}, nil

	case cfg.BackendS3:
		if awsCfg == nil {
			return nil, xerrors.New("s3 backend needs an aws config")
		}
		ac, err := awsCfg()
		if err != nil {
			return nil, xerrors.Wrap(err, "load aws config")
		}
		t, err := content.NewS3Transport(content.S3Options{
			Client: s3.NewFromConfig(ac),
			Bucket: conf.ContentS3Bucket,
			Prefix: conf.ContentS3Prefix,
		})
		if err != nil {
			return nil, err
		}
		L.Info(ctx, "content backend: s3", "bucket", conf.ContentS3Bucket, "prefix", conf.ContentS3Prefix)
		return &Backend{Name: cfg.BackendS3, Transport: t, Readiness: health.Fixed(true, "")}, nil

	case cfg.BackendFS:
		b := &Backend{Name: cfg.BackendFS, Dir: conf.ContentDir}
		if conf.ContentDir != "" {
			b.Store = content.NewStore(os.DirFS(conf.ContentDir))
		} else {
			seed, ok := webassets.SeedContentFS()
			if !ok {
				return nil, xerrors.New("no content-dir configured and no seed content embedded")
			}
			b.Store = content.NewStore(seed)
		}
		_, snap, err := b.Store.Reload()
		if err != nil {
			// keep serving maintenance until the watcher loads a good tree
			L.Error(ctx, err, "initial content load failed", "dir", conf.ContentDir)
		} else {
			if m != nil {
				m.SetContentDocuments(snap.Len())
				m.SetContentLoadedTimestamp(time.Now())
			}
			L.Info(ctx, "content backend: fs", "dir", conf.ContentDir, "documents", snap.Len())
		}
		b.Transport = b.Store
		b.Readiness = health.CheckFunc(func(context.Context) error { return b.Store.ReadyErr() })
		return b, nil
	}
	return nil, xerrors.Newf("unknown content backend %q", conf.ContentBackend)
}
