package urlstream

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

var (
	// ErrUnsupportedScheme is returned by Open for any scheme other than file, http or https
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrNotFound is the error kind for a destination that does not exist, for both a missing
	// local directory and a 404 response to the upload.
	ErrNotFound = fs.ErrNotExist

	// ErrClosed is returned when writing to, or closing, a stream that was already closed
	ErrClosed = os.ErrClosed
)

// ResponseError is returned by Close when the server answers the upload with a non-2xx status
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	// Truncated is set when the body was longer than what is kept
	Truncated bool
}

// TruncatedSuffix ends the message of a ResponseError whose body was cut short
const TruncatedSuffix = " [truncated]"

// Error returns the body sent by the server, so that the server's own diagnostic is what gets reported
func (e *ResponseError) Error() string {
	if e.Truncated {
		return e.Body + TruncatedSuffix
	}
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports a 404 as ErrNotFound
func (e *ResponseError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
