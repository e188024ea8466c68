package urlstream

import (
	"net/http"
)

// Option configures a Stream
type Option func(*options)

type options struct {
	client *http.Client
	header http.Header
}

func defaultOptions() *options {
	return &options{
		client: &http.Client{
			// Uploads are single-shot; a redirect is reported rather than replayed
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		header: make(http.Header),
	}
}

// WithHTTPClient sets the client used for the upload on Close
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithContentType sets the Content-Type header of the upload
func WithContentType(contentType string) Option {
	return WithHeader("Content-Type", contentType)
}

// WithHeader adds a header to the upload. Content-Length is always derived from the buffered bytes.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if value != "" {
			o.header.Set(key, value)
		}
	}
}
