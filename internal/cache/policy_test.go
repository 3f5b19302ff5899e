package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, []string{"origin"}, p.HeaderAllowList)
	assert.Equal(t, []string{"signature"}, p.QueryAllowList)
	assert.Equal(t, 24*time.Hour, p.DefaultTTL)
	assert.Equal(t, time.Second, p.MinTTL)
	assert.Equal(t, 365*24*time.Hour, p.MaxTTL)
}

func TestNewPolicyValidation(t *testing.T) {
	tests := []struct {
		name                string
		def, min, max, errs time.Duration
		wantErr             string
	}{
		{name: "ordered", def: time.Hour, min: time.Second, max: 24 * time.Hour},
		{name: "all equal", def: time.Minute, min: time.Minute, max: time.Minute},
		{name: "all zero", def: 0, min: 0, max: 0},
		{name: "min above default", def: time.Second, min: time.Minute, max: time.Hour, wantErr: "min TTL"},
		{name: "default above max", def: 2 * time.Hour, min: 0, max: time.Hour, wantErr: "exceeds max TTL"},
		{name: "negative", def: time.Hour, min: -time.Second, max: 2 * time.Hour, wantErr: "non-negative"},
		{name: "negative error ttl", def: time.Hour, min: 0, max: 2 * time.Hour, errs: -1, wantErr: "non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.def, tt.min, tt.max, tt.errs)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{VaryHeader}, p.HeaderAllowList)
			assert.Equal(t, []string{VaryQuery}, p.QueryAllowList)
		})
	}
}

func TestPolicyTTL(t *testing.T) {
	p, err := NewPolicy(time.Hour, 10*time.Second, 24*time.Hour, 10*time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name         string
		status       int
		cacheControl string
		want         time.Duration
	}{
		{name: "no header uses default", status: http.StatusOK, want: time.Hour},
		{name: "max-age honored", status: http.StatusOK, cacheControl: "public, max-age=120", want: 2 * time.Minute},
		{name: "s-maxage wins", status: http.StatusOK, cacheControl: "s-maxage=300, max-age=60", want: 5 * time.Minute},
		{name: "s-maxage wins regardless of order", status: http.StatusOK, cacheControl: "max-age=60, s-maxage=300", want: 5 * time.Minute},
		{name: "clamped to min", status: http.StatusOK, cacheControl: "max-age=1", want: 10 * time.Second},
		{name: "clamped to max", status: http.StatusOK, cacheControl: "max-age=31536000", want: 24 * time.Hour},
		{name: "huge max-age clamped", status: http.StatusOK, cacheControl: "max-age=99999999999999", want: 24 * time.Hour},
		{name: "garbage ignored", status: http.StatusOK, cacheControl: "max-age=soon", want: time.Hour},
		{name: "server error cached briefly", status: http.StatusServiceUnavailable, want: 10 * time.Minute},
		{name: "not implemented cached briefly", status: http.StatusNotImplemented, want: 10 * time.Minute},
		{name: "client error not cached", status: http.StatusForbidden, want: 0},
		{name: "505 not cached", status: http.StatusHTTPVersionNotSupported, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.TTL(tt.status, tt.cacheControl))
		})
	}
}

func TestPolicyCacheControl(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, "public, max-age=86400", p.CacheControl(24*time.Hour))
	assert.Equal(t, "no-store", p.CacheControl(0))
}
