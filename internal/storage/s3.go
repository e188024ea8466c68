package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/e-flux-platform/urlstream/internal/urlstream"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes objects to an S3 bucket. Like an http destination, each object is buffered and sent
// with a single PutObject on Close.
type S3 struct {
	client   s3API
	bucket   string
	basePath string
}

func newS3(ctx context.Context, bucket, basePath string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load aws config: %w", err)
	}
	return newS3WithClient(s3.NewFromConfig(cfg), bucket, basePath), nil
}

func newS3WithClient(client s3API, bucket, basePath string) *S3 {
	return &S3{
		client:   client,
		bucket:   bucket,
		basePath: basePath,
	}
}

func (s *S3) Create(ctx context.Context, relativePath string) (io.WriteCloser, error) {
	return &s3Writer{
		ctx:    ctx,
		client: s.client,
		bucket: s.bucket,
		key:    path.Join(s.basePath, relativePath),
	}, nil
}

func (s *S3) Close() error {
	return nil
}

type s3Writer struct {
	ctx    context.Context
	client s3API
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, urlstream.ErrClosed
	}
	return w.buf.Write(p)
}

// Abort drops the buffered object without sending it
func (w *s3Writer) Abort() error {
	if w.closed {
		return urlstream.ErrClosed
	}
	w.closed = true
	w.buf = bytes.Buffer{}
	return nil
}

func (w *s3Writer) Close() error {
	if w.closed {
		return urlstream.ErrClosed
	}
	w.closed = true

	length := int64(w.buf.Len())
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        &w.bucket,
		Key:           &w.key,
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: &length,
	})
	w.buf = bytes.Buffer{}
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket" {
			return fmt.Errorf("put s3 object bucket=%q key=%q: %w: %w", w.bucket, w.key, urlstream.ErrNotFound, err)
		}
		return fmt.Errorf("put s3 object bucket=%q key=%q: %w", w.bucket, w.key, err)
	}
	return nil
}
