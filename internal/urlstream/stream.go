// Package urlstream provides a writable byte stream addressed by URL.
//
// A file URL is written straight to the local file as bytes arrive. An http or https URL is
// buffered in memory and sent as the body of a single PUT request when the stream is closed,
// so that the content length is known up front. Flush never sends anything over the network.
package urlstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Limit on how much of an error response is kept as the error message
const maxErrorBody = 1 << 20

// Mode is the writing strategy of a Stream, fixed when it is opened
type Mode int

const (
	ModeLocalFile Mode = iota + 1
	ModeRemoteHTTP
)

func (m Mode) String() string {
	switch m {
	case ModeLocalFile:
		return "file"
	case ModeRemoteHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Stream is a byte sink whose destination is a URL. It is meant for a single writer and must be
// closed exactly once to finalize the write.
type Stream struct {
	ctx  context.Context
	dest *url.URL
	mode Mode

	// ModeLocalFile
	file *os.File

	// ModeRemoteHTTP
	buf    *bytes.Buffer
	client *http.Client
	header http.Header

	closed bool
}

// Open parses rawURL and opens a Stream for it. The Stream keeps ctx for the upload made by Close,
// so cancelling ctx before Close makes the upload fail.
func Open(ctx context.Context, rawURL string, opts ...Option) (*Stream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return OpenURL(ctx, u, opts...)
}

// OpenURL opens a Stream for u. A file destination is created, or truncated, immediately; an
// http destination is not contacted until Close. The context is kept for the upload on Close.
func OpenURL(ctx context.Context, u *url.URL, opts ...Option) (*Stream, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	dest := *u
	s := &Stream{
		ctx:  ctx,
		dest: &dest,
	}

	switch u.Scheme {
	case "file":
		f, err := os.Create(localPath(u))
		if err != nil {
			return nil, err
		}
		s.mode = ModeLocalFile
		s.file = f
	case "http", "https":
		s.mode = ModeRemoteHTTP
		s.buf = new(bytes.Buffer)
		s.client = o.client
		s.header = o.header
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	return s, nil
}

func localPath(u *url.URL) string {
	p := u.Path
	if p == "" {
		// file:relative/path
		p = u.Opaque
	}
	return filepath.FromSlash(p)
}

// URL returns a copy of the destination
func (s *Stream) URL() *url.URL {
	u := *s.dest
	return &u
}

// Mode returns the writing strategy chosen from the destination's scheme
func (s *Stream) Mode() Mode {
	return s.mode
}

// Write writes p to the file, or appends it to the upload buffer
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	switch s.mode {
	case ModeLocalFile:
		return s.file.Write(p)
	default:
		return s.buf.Write(p)
	}
}

// Flush syncs a file destination. For an http destination it does nothing: the body is only sent
// by Close.
func (s *Stream) Flush() error {
	if s.closed {
		return ErrClosed
	}
	switch s.mode {
	case ModeLocalFile:
		return s.file.Sync()
	default:
		return nil
	}
}

// Close releases the file, or uploads the buffered bytes with a single PUT and reports the
// outcome. Whatever the result, the stream cannot be used or closed again.
func (s *Stream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	switch s.mode {
	case ModeLocalFile:
		return s.file.Close()
	default:
		defer func() {
			s.buf = nil
		}()
		return s.put()
	}
}

// Abort gives up on the write. A file destination is closed and removed; for an http destination the
// buffer is dropped and nothing is sent. The stream cannot be used afterwards.
func (s *Stream) Abort() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	switch s.mode {
	case ModeLocalFile:
		return errors.Join(s.file.Close(), os.Remove(s.file.Name()))
	default:
		s.buf = nil
		return nil
	}
}

func (s *Stream) put() error {
	body := s.buf.Bytes()
	target := s.dest.String()

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to build request: %w", err)
	}
	req.ContentLength = int64(len(body))
	for key, values := range s.header {
		req.Header[key] = values
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to put %s: %w", s.dest.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	slog.Debug(
		"put completed",
		slog.String("url", s.dest.Redacted()),
		slog.String("requestId", requestID),
		slog.Int("bytes", len(body)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
	if err != nil {
		return fmt.Errorf("unable to read response to put %s (status %d): %w", s.dest.Redacted(), resp.StatusCode, err)
	}
	respErr := &ResponseError{
		Method:     http.MethodPut,
		URL:        s.dest.Redacted(),
		StatusCode: resp.StatusCode,
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
		respErr.Truncated = true
	}
	respErr.Body = string(msg)
	return respErr
}
