package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the export transport needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Options struct {
	Client S3API
	Bucket string
	// Prefix is the key prefix of the export; objects are {prefix}/{type}.json.
	Prefix string
}

// S3Transport serves catalogue queries from a published dataset export: one
// JSON array of documents per content type.
type S3Transport struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Transport(opts S3Options) (*S3Transport, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: s3 client is required", ErrInvalidOptions)
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrInvalidOptions)
	}
	return &S3Transport{client: opts.Client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (t *S3Transport) key(q Query) string {
	return path.Join(t.prefix, string(q.Type)+".json")
}

func (t *S3Transport) Query(ctx context.Context, q Query, params Params) (json.RawMessage, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(q)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			// no documents of this type have been published
			return selectDocs(q, nil, params)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", t.bucket, t.key(q), err)
	}
	defer out.Body.Close()

	var docs []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(out.Body, maxResponseBytes)).Decode(&docs); err != nil {
		return nil, &FetchError{Query: q.ID, Kind: KindDecode, Err: err}
	}
	return selectDocs(q, docs, params)
}
