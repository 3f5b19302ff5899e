package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegate/internal/keys"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imagegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"COMPUTE_BASE_URL": "http://thumbor:8000",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, keys.PartialEncode, cfg.Strategy())
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 29*time.Second, cfg.Compute.Timeout)
	assert.False(t, cfg.Fallback.Enabled)

	policy, err := cfg.CachePolicy()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, policy.DefaultTTL)
	assert.Equal(t, 10*time.Minute, policy.ErrorTTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
port: "9000"
gateway_version: v7
key_encoding: full
cache:
  backend: redis
  redis_addr: redis:6379
  default_ttl: 1h
  min_ttl: 1m
  max_ttl: 48h
  error_ttl: 30s
storage:
  backend: minio
  endpoint: minio:9000
  bucket: images
compute:
  base_url: http://thumbor:8000
  timeout: 10s
fallback:
  enabled: true
  image:
    bucket: assets
    key: default.png
`)

	cfg, err := Load(path, envMap(map[string]string{
		"PORT":         "9100",
		"KEY_ENCODING": "sanitize",
		"CORS_ENABLED": "Yes",
		"CORS_ORIGIN":  "https://app.example",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "v7", cfg.Version)
	assert.Equal(t, keys.Sanitize, cfg.Strategy())
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.ErrorTTL)
	assert.Equal(t, "images", cfg.Storage.Bucket)
	assert.Equal(t, 10*time.Second, cfg.Compute.Timeout)
	assert.Equal(t, "assets", cfg.FallbackBucket())
	assert.Equal(t, "default.png", cfg.Fallback.Image.Key)
	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, "https://app.example", cfg.CORS.Origin)
}

func TestLoadEnvEndpointSelectsMinio(t *testing.T) {
	cfg, err := Load("", envMap(map[string]string{
		"COMPUTE_BASE_URL":              "http://thumbor:8000",
		"STORAGE_ENDPOINT":              "minio:9000",
		"STORAGE_BUCKET":                "images",
		"ENABLE_DEFAULT_FALLBACK_IMAGE": "true",
		"DEFAULT_FALLBACK_IMAGE_KEY":    "fallback.jpg",
		"COMPUTE_TIMEOUT":               "5s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "images", cfg.FallbackBucket())
	assert.Equal(t, 5*time.Second, cfg.Compute.Timeout)
}

func TestLoadErrors(t *testing.T) {
	base := map[string]string{"COMPUTE_BASE_URL": "http://thumbor:8000"}
	with := func(k, v string) map[string]string {
		m := map[string]string{}
		for bk, bv := range base {
			m[bk] = bv
		}
		m[k] = v
		return m
	}

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing compute", env: map[string]string{}, want: "compute.base_url"},
		{name: "bad encoding", env: with("KEY_ENCODING", "rot13"), want: "unknown encoding strategy"},
		{name: "bad cache backend", env: with("CACHE_BACKEND", "memcached"), want: "cache.backend"},
		{name: "bad bool", env: with("CORS_ENABLED", "maybe"), want: "CORS_ENABLED"},
		{name: "bad duration", env: with("COMPUTE_TIMEOUT", "soon"), want: "COMPUTE_TIMEOUT"},
		{name: "fallback without key", env: with("ENABLE_DEFAULT_FALLBACK_IMAGE", "Yes"), want: "fallback.image.key"},
		{name: "signature without secret", env: with("ENABLE_SIGNATURE", "Yes"), want: "signature.secret"},
		{name: "minio without bucket", env: with("STORAGE_ENDPOINT", "minio:9000"), want: "storage.bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", envMap(tt.env))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadRejectsInvertedTTLs(t *testing.T) {
	path := writeConfig(t, `
compute:
  base_url: http://thumbor:8000
cache:
  default_ttl: 1h
  max_ttl: 1m
`)
	_, err := Load(path, envMap(nil))
	require.ErrorContains(t, err, "exceeds max TTL")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	require.ErrorContains(t, err, "failed to read config file")
}
