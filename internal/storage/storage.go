package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Object is a stored artifact and the metadata served alongside it.
type Object struct {
	Body         []byte
	ContentType  string
	CacheControl string
	ETag         string
	LastModified time.Time
	// Expires is zero when the object never expires.
	Expires time.Time
}

// Expired reports whether o carries an expiry that is already past.
func (o *Object) Expired(now time.Time) bool {
	return !o.Expires.IsZero() && now.After(o.Expires)
}

// Store is the object store both origins use.
// Implemented by MemoryStore (dev, tests) and MinioStore (S3-compatible).
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, obj *Object) error
}

// StatusError is an object-store failure with an HTTP-style status.
type StatusError struct {
	Code int
	Key  string
	Body []byte
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s: status %d: %v", e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("storage: %s: status %d", e.Key, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NotFound builds the 404 returned for absent keys.
func NotFound(key string) *StatusError {
	return &StatusError{Code: http.StatusNotFound, Key: key}
}

// StatusOf extracts the status carried by err. Errors without one are
// transport faults and report 502.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code != 0 {
		return se.Code
	}
	return http.StatusBadGateway
}
