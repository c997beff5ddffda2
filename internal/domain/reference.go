package domain

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// DefaultMarker is the reserved path segment that identifies async result URLs
const DefaultMarker = "async_results"

// ResultReference points at one async result directory on the file server
type ResultReference struct {
	// URL is the absolute directory URL without a trailing slash
	URL string

	// User is the second-to-last path component
	User string

	// Stream is the last path component, the timestamped request directory
	Stream string
}

// ParseReference splits an async result URL into its user and stream segments.
// URLs with fewer than two path components are rejected rather than producing
// empty segments. A query string or fragment is dropped, so the reference
// always names the directory itself.
func ParseReference(raw string) (ResultReference, error) {
	trimmed := strings.TrimSpace(raw)
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if trimmed == "" {
		return ResultReference{}, NewSkippableError(ErrInvalidInput, "empty url")
	}

	path := trimmed
	if u, err := url.Parse(trimmed); err == nil && u.Host != "" {
		path = u.Path
	}

	segments := make([]string, 0, 8)
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return ResultReference{}, NewSkippableError(ErrTooFewSegments, trimmed)
	}

	return ResultReference{
		URL:    trimmed,
		User:   segments[len(segments)-2],
		Stream: segments[len(segments)-1],
	}, nil
}

// WithOverrides returns a copy of r with non-empty user/stream replacing the
// derived segments
func (r ResultReference) WithOverrides(user, stream string) ResultReference {
	if user != "" {
		r.User = user
	}
	if stream != "" {
		r.Stream = stream
	}
	return r
}

// DirURL returns the reference URL with a trailing slash, as a directory
func (r ResultReference) DirURL() string {
	return r.URL + "/"
}

// FileURL returns the URL of a file directly inside the result directory
func (r ResultReference) FileURL(name string) string {
	return r.URL + "/" + strings.TrimLeft(name, "/")
}

// String implements fmt.Stringer
func (r ResultReference) String() string {
	return fmt.Sprintf("%s (user=%s stream=%s)", r.URL, r.User, r.Stream)
}

// DestinationPath returns root/user/stream
func DestinationPath(root string, ref ResultReference) string {
	return filepath.Join(root, ref.User, ref.Stream)
}
