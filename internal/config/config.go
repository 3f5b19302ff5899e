// Package config loads the gateway configuration: YAML file first, then
// environment overrides, then validation. The result is read-only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"imagegate/internal/cache"
	"imagegate/internal/fallback"
	"imagegate/internal/keys"
)

type Config struct {
	Port string `yaml:"port"`
	// Version is the edge cache generation. Bumping it orphans every
	// edge entry.
	Version     string `yaml:"gateway_version"`
	KeyEncoding string `yaml:"key_encoding"`

	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Compute   ComputeConfig   `yaml:"compute"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Signature SignatureConfig `yaml:"signature"`
	CORS      CORSConfig      `yaml:"cors"`
}

type CacheConfig struct {
	Backend         string        `yaml:"backend"` // memory | redis
	Prefix          string        `yaml:"prefix"`
	RedisAddr       string        `yaml:"redis_addr"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	MaxBytes        int64         `yaml:"max_bytes"`

	DefaultTTL time.Duration `yaml:"default_ttl"`
	MinTTL     time.Duration `yaml:"min_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`
	ErrorTTL   time.Duration `yaml:"error_ttl"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // memory | minio
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ComputeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type FallbackConfig struct {
	Enabled bool         `yaml:"enabled"`
	Image   fallback.Ref `yaml:"image"`
}

type SignatureConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

type CORSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Origin  string `yaml:"origin"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	policy := cache.DefaultPolicy()
	return Config{
		Port:        "8080",
		Version:     "v1",
		KeyEncoding: keys.PartialEncode.String(),
		Cache: CacheConfig{
			Backend:         "memory",
			Prefix:          "imagegate",
			RedisAddr:       "127.0.0.1:6379",
			CleanupInterval: time.Minute,
			DefaultTTL:      policy.DefaultTTL,
			MinTTL:          policy.MinTTL,
			MaxTTL:          policy.MaxTTL,
			ErrorTTL:        policy.ErrorTTL,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Compute: ComputeConfig{
			Timeout: 29 * time.Second,
		},
		CORS: CORSConfig{
			Origin: "*",
		},
	}
}

// Load reads path (if non-empty), applies environment overrides read through
// getenv, and validates the result. getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error

	str := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(dst *bool, key string) {
		v := getenv(key)
		if v == "" {
			return
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
	duration := func(dst *time.Duration, key string) {
		v := getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str(&c.Port, "PORT")
	str(&c.Version, "GATEWAY_VERSION")
	str(&c.KeyEncoding, "KEY_ENCODING")

	str(&c.Cache.Backend, "CACHE_BACKEND")
	str(&c.Cache.RedisAddr, "REDIS_ADDR")

	str(&c.Storage.Endpoint, "STORAGE_ENDPOINT")
	str(&c.Storage.Bucket, "STORAGE_BUCKET")
	str(&c.Storage.AccessKey, "STORAGE_ACCESS_KEY")
	str(&c.Storage.SecretKey, "STORAGE_SECRET_KEY")
	boolean(&c.Storage.UseSSL, "STORAGE_USE_SSL")
	// An endpoint implies the S3-compatible backend.
	if getenv("STORAGE_ENDPOINT") != "" {
		c.Storage.Backend = "minio"
	}

	str(&c.Compute.BaseURL, "COMPUTE_BASE_URL")
	duration(&c.Compute.Timeout, "COMPUTE_TIMEOUT")

	boolean(&c.Fallback.Enabled, "ENABLE_DEFAULT_FALLBACK_IMAGE")
	str(&c.Fallback.Image.Bucket, "DEFAULT_FALLBACK_IMAGE_BUCKET")
	str(&c.Fallback.Image.Key, "DEFAULT_FALLBACK_IMAGE_KEY")

	boolean(&c.Signature.Enabled, "ENABLE_SIGNATURE")
	str(&c.Signature.Secret, "SECRET_KEY")

	boolean(&c.CORS.Enabled, "CORS_ENABLED")
	str(&c.CORS.Origin, "CORS_ORIGIN")

	return errors.Join(errs...)
}

// parseBool also accepts the Yes/No spelling used by deployment templates.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("gateway_version is required")
	}
	if _, err := keys.ParseStrategy(c.KeyEncoding); err != nil {
		return err
	}
	if _, err := c.CachePolicy(); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q (supported: memory, redis)", c.Cache.Backend)
	}

	switch c.Storage.Backend {
	case "memory":
	case "minio":
		if c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint is required for the minio backend")
		}
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q (supported: memory, minio)", c.Storage.Backend)
	}

	if c.Compute.BaseURL == "" {
		return errors.New("compute.base_url is required")
	}
	if c.Compute.Timeout <= 0 {
		return errors.New("compute.timeout must be positive")
	}

	if c.Fallback.Enabled && c.Fallback.Image.Key == "" {
		return errors.New("fallback.image.key is required when the default image is enabled")
	}
	if c.Signature.Enabled && c.Signature.Secret == "" {
		return errors.New("signature.secret is required when signatures are enabled")
	}
	return nil
}

// Strategy returns the configured key encoding.
func (c *Config) Strategy() keys.Strategy {
	s, _ := keys.ParseStrategy(c.KeyEncoding)
	return s
}

// CachePolicy returns the edge cache policy built from the TTL settings.
func (c *Config) CachePolicy() (cache.Policy, error) {
	return cache.NewPolicy(c.Cache.DefaultTTL, c.Cache.MinTTL, c.Cache.MaxTTL, c.Cache.ErrorTTL)
}

// FallbackBucket is the bucket holding the default image, which defaults to
// the storage bucket.
func (c *Config) FallbackBucket() string {
	if c.Fallback.Image.Bucket != "" {
		return c.Fallback.Image.Bucket
	}
	return c.Storage.Bucket
}
