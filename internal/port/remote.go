package port

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ResourceInfo describes a remote resource as reported by the server
type ResourceInfo struct {
	// URL is the final URL after redirects
	URL           string
	StatusCode    int
	ContentType   string
	ContentLength int64
}

// RemoteClient defines the interface for talking to the async result file server
type RemoteClient interface {
	// Get fetches url. Non-2xx answers return a *StatusError and no body.
	// The caller must close the returned body.
	Get(ctx context.Context, url string) (io.ReadCloser, *ResourceInfo, error)

	// Head checks url without transferring a body.
	// Non-2xx answers return the info together with a *StatusError.
	Head(ctx context.Context, url string) (*ResourceInfo, error)
}

// StatusError is returned when the server answered with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d for %s", e.StatusCode, e.URL)
}

// IsStatusError returns true if err carries an HTTP status answer,
// as opposed to a transport failure
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Response is a complete HTTP answer, read whatever its status
type Response struct {
	URL        string
	StatusCode int
	Status     string
	Body       []byte
}

// RequestClient sends requests whose answer is wanted even when it is an error
type RequestClient interface {
	// Fetch GETs url and reads the body. Only transport failures return an error.
	Fetch(ctx context.Context, url string) (*Response, error)
}
