package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/e-flux-platform/urlstream/internal/urlstream"
)

// GCS writes objects to a Google Cloud Storage bucket
type GCS struct {
	bucket   *storage.BucketHandle
	basePath string
	closer   io.Closer
}

func newGCS(ctx context.Context, bucket, basePath string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCS{
		bucket:   client.Bucket(bucket),
		basePath: basePath,
		closer:   client,
	}, nil
}

func (gcs *GCS) Create(ctx context.Context, relativePath string) (io.WriteCloser, error) {
	fullPath := path.Join(gcs.basePath, relativePath)
	ctx, cancel := context.WithCancel(ctx)
	wc := gcs.bucket.Object(fullPath).NewWriter(ctx)
	// Single request on Close, same as an http destination
	wc.ChunkSize = 0
	return &gcsWriter{Writer: wc, name: fullPath, cancel: cancel}, nil
}

func (gcs *GCS) Close() error {
	return gcs.closer.Close()
}

type gcsWriter struct {
	*storage.Writer
	name   string
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	return gcsError(w.name, w.Writer.Close())
}

// Abort cancels the upload; the object is not created
func (w *gcsWriter) Abort() error {
	w.cancel()
	// Close reports the cancellation, which is the expected outcome here
	_ = w.Writer.Close()
	return nil
}

// gcsError maps a missing bucket onto urlstream.ErrNotFound
func gcsError(name string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.Is(err, storage.ErrBucketNotExist) || (errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound) {
		return fmt.Errorf("gcs object %s: %w: %w", name, urlstream.ErrNotFound, err)
	}
	return err
}
