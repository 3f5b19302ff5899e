package compute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"imagegate/internal/keys"
)

// Request is what the Transform Engine needs to regenerate an artifact.
// The storage key is deliberately absent: the engine derives its own.
type Request struct {
	Directory  string
	Filename   string
	Directives []keys.Directive

	// Query and Header are forwarded as received, including attributes the
	// edge cache ignores.
	Query  url.Values
	Header http.Header
}

// Path rebuilds the request path. Segments are in decoded form except for
// '%' and '/', which stay escaped.
func (r *Request) Path() string {
	if r.Directory == "" {
		return r.Filename
	}
	return r.Directory + "/" + r.Filename
}

type Result struct {
	Body         []byte
	ContentType  string
	CacheControl string
}

// TransformError is a non-2xx answer from the Transform Engine.
type TransformError struct {
	Status      int
	Body        []byte
	ContentType string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("compute: transform failed with status %d: %s", e.Status, truncate(string(e.Body), 200))
}

// StatusOf returns the status to propagate for a compute failure.
// Timeouts report 504 and transport faults 502.
func StatusOf(err error) int {
	var te *TransformError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &te):
		return te.Status
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Engine is the compute origin.
type Engine interface {
	Transform(ctx context.Context, req *Request) (*Result, error)
}
