package signature

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Secret(context.Context) ([]byte, error) {
	return nil, errors.New("secrets manager unreachable")
}

func TestVerifyDisabledAcceptsAll(t *testing.T) {
	v, err := NewVerifier(false, nil)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(context.Background(), "/photos/cat.jpg", ""))
	assert.NoError(t, v.Verify(context.Background(), "/photos/cat.jpg", "zz"))
}

func TestNewVerifierRequiresStoreWhenEnabled(t *testing.T) {
	_, err := NewVerifier(true, nil)
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	secret := StaticSecret("s3cr3t")
	v, err := NewVerifier(true, secret)
	require.NoError(t, err)

	good := SignHex(secret, "/photos/cat.jpg/filters:format(webp)")

	tests := []struct {
		name    string
		path    string
		sig     string
		wantErr error
	}{
		{name: "valid", path: "/photos/cat.jpg/filters:format(webp)", sig: good},
		{name: "valid without leading slash", path: "photos/cat.jpg/filters:format(webp)", sig: good},
		{name: "missing", path: "/photos/cat.jpg", wantErr: ErrMissingSignature},
		{name: "other path", path: "/photos/dog.jpg", sig: good, wantErr: ErrInvalidSignature},
		{name: "not hex", path: "/photos/cat.jpg", sig: "not-hex", wantErr: ErrInvalidSignature},
		{name: "truncated", path: "/photos/cat.jpg/filters:format(webp)", sig: good[:10], wantErr: ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(context.Background(), tt.path, tt.sig)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifySecretStoreFailure(t *testing.T) {
	v, err := NewVerifier(true, failingStore{})
	require.NoError(t, err)

	err = v.Verify(context.Background(), "/a.png", "abcd")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidSignature))
	assert.False(t, errors.Is(err, ErrMissingSignature))
}

func TestStaticSecretEmpty(t *testing.T) {
	_, err := StaticSecret(nil).Secret(context.Background())
	require.Error(t, err)
}
