package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/e-flux-platform/urlstream/internal/urlstream"
)

// Store creates writers for paths relative to a base destination. A writer's content is only
// guaranteed to be stored once its Close returns nil.
type Store interface {
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	io.Closer
}

// FromURL returns the Store for the scheme of rawURL
func FromURL(ctx context.Context, rawURL string, opts ...urlstream.Option) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "file", "http", "https":
		return newURLStore(u, opts...), nil
	case "gcs":
		return newGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "s3":
		return newS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "noop":
		return newNoop(), nil
	default:
		return nil, fmt.Errorf("%w: %q", urlstream.ErrUnsupportedScheme, u.Scheme)
	}
}
