// Package signature produces the pass/fail verdict for signed image URLs.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("signature: missing")
	ErrInvalidSignature = errors.New("signature: invalid")
)

// SecretStore returns the shared signing secret.
type SecretStore interface {
	Secret(ctx context.Context) ([]byte, error)
}

// StaticSecret is a SecretStore holding a secret read at startup.
type StaticSecret []byte

func (s StaticSecret) Secret(context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.New("signature: secret is empty")
	}
	return s, nil
}

// Verifier checks the signature query parameter of image requests.
// A disabled Verifier accepts everything.
type Verifier struct {
	enabled bool
	secrets SecretStore
}

func NewVerifier(enabled bool, secrets SecretStore) (*Verifier, error) {
	if enabled && secrets == nil {
		return nil, errors.New("signature: secret store is required when enabled")
	}
	return &Verifier{enabled: enabled, secrets: secrets}, nil
}

func (v *Verifier) Enabled() bool {
	return v != nil && v.enabled
}

// Verify checks that sig is the hex HMAC-SHA256 of path under the current
// secret. path is normalized to carry exactly one leading slash.
// Errors other than ErrMissingSignature and ErrInvalidSignature mean the
// secret could not be read.
func (v *Verifier) Verify(ctx context.Context, path, sig string) error {
	if !v.Enabled() {
		return nil
	}
	if sig == "" {
		return ErrMissingSignature
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: not hex", ErrInvalidSignature)
	}

	secret, err := v.secrets.Secret(ctx)
	if err != nil {
		return fmt.Errorf("signature: load secret: %w", err)
	}

	if subtle.ConstantTimeCompare(Sign(secret, path), got) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of path.
func Sign(secret []byte, path string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("/" + strings.TrimLeft(path, "/")))
	return mac.Sum(nil)
}

// SignHex is Sign, hex encoded, as clients send it.
func SignHex(secret []byte, path string) string {
	return hex.EncodeToString(Sign(secret, path))
}
