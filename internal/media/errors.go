// internal/media/errors.go
package media

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the extraction engine and the fetcher. Handlers
// map these onto HTTP status codes; inside an extractor individual strategy
// failures are swallowed so the cascade can continue, and only one of these
// aggregates surfaces.
var (
	// ErrInvalidInput marks a missing or malformed URL or request body.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNavigationFailed marks a page the browser could not reach within
	// the navigation timeout.
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrLoginWalled marks a load that was redirected to a login page and
	// yielded no media through any strategy.
	ErrLoginWalled = errors.New("login required")

	// ErrNoMediaFound marks an exhausted strategy cascade, or a discovered
	// URL that is unusable (e.g. a blob: MediaSource URL).
	ErrNoMediaFound = errors.New("no media found")

	// ErrDownloadTimeout marks a browser-driven download that never
	// completed within the polling window.
	ErrDownloadTimeout = errors.New("download timed out")

	// ErrEmptyResponse marks a 2xx upstream response with no body.
	ErrEmptyResponse = errors.New("empty response body")
)

// UpstreamRejectedError reports a non-2xx status from a CDN or origin.
type UpstreamRejectedError struct {
	Status  int
	Message string
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("upstream rejected request: HTTP %d %s", e.Status, e.Message)
}

// IsUpstreamRejected reports whether err wraps an UpstreamRejectedError and
// returns it when so.
func IsUpstreamRejected(err error) (*UpstreamRejectedError, bool) {
	var ue *UpstreamRejectedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
