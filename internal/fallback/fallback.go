// Package fallback substitutes a fixed default image when the compute origin
// cannot produce one.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"imagegate/internal/storage"
)

var (
	// ErrDisabled is returned by Resolve when substitution is turned off.
	ErrDisabled = errors.New("fallback: default image disabled")
	// ErrUnavailable wraps a failure to load the default image itself.
	ErrUnavailable = errors.New("fallback: default image unavailable")
)

// Ref locates the default image.
type Ref struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
}

func (r Ref) String() string {
	return r.Bucket + "/" + r.Key
}

// Policy is fixed at startup. Store must read from Ref.Bucket.
type Policy struct {
	enabled bool
	ref     Ref
	store   storage.Store
}

// New returns a Policy. An enabled policy needs a key and a store.
func New(enabled bool, ref Ref, store storage.Store) (*Policy, error) {
	if enabled {
		if strings.TrimSpace(ref.Key) == "" {
			return nil, errors.New("fallback: key is required when enabled")
		}
		if store == nil {
			return nil, errors.New("fallback: store is required when enabled")
		}
	}
	return &Policy{enabled: enabled, ref: ref, store: store}, nil
}

// Disabled returns a Policy that never substitutes.
func Disabled() *Policy {
	return &Policy{}
}

func (p *Policy) Enabled() bool {
	return p != nil && p.enabled
}

func (p *Policy) Ref() Ref {
	return p.ref
}

// Resolve loads the default image verbatim. There is no second-level
// fallback: a missing asset is returned as an ErrUnavailable that still
// wraps the storage error, so storage.StatusOf reports its status.
func (p *Policy) Resolve(ctx context.Context) (*storage.Object, error) {
	if !p.Enabled() {
		return nil, ErrDisabled
	}
	obj, err := p.store.Get(ctx, p.ref.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, p.ref, err)
	}
	return obj, nil
}
