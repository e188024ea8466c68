package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/e-flux-platform/urlstream/internal/urlstream"
)

// URLStore writes through urlstream: directly to disk for file URLs, one PUT per created path
// for http(s) URLs
type URLStore struct {
	base *url.URL
	opts []urlstream.Option
}

func newURLStore(base *url.URL, opts ...urlstream.Option) *URLStore {
	return &URLStore{
		base: base,
		opts: opts,
	}
}

// Create opens a stream for relativePath beneath the base URL
func (s *URLStore) Create(ctx context.Context, relativePath string) (io.WriteCloser, error) {
	target := s.resolve(relativePath)
	if target.Scheme == "file" {
		absPath, err := filepath.Abs(filepath.FromSlash(target.Path))
		if err != nil {
			return nil, err
		}
		if err = os.MkdirAll(filepath.Dir(absPath), 0700); err != nil {
			return nil, err
		}
		target.Path = filepath.ToSlash(absPath)
	}
	return urlstream.OpenURL(ctx, target, s.opts...)
}

func (s *URLStore) resolve(relativePath string) *url.URL {
	target := *s.base
	basePath := target.Path
	if basePath == "" {
		basePath = target.Opaque
		target.Opaque = ""
	}
	target.Path = path.Join(basePath, relativePath)
	target.RawPath = ""
	return &target
}

func (s *URLStore) Close() error {
	return nil
}
