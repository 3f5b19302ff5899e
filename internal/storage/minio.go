package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultMaxObjectSize = 64 * 1024 * 1024

// MinioConfig holds S3-compatible store configuration.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// MaxObjectSize bounds how much of an object Get will buffer (default: 64MB).
	MaxObjectSize int64

	// Client is an optional pre-configured client. If set, Endpoint and the
	// credentials are ignored.
	Client *minio.Client
}

func (c *MinioConfig) validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when client is not provided")
	}
	return nil
}

// MinioStore implements Store on one bucket of an S3-compatible service.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	maxSize int64
}

// NewMinioStore creates a bucket-bound store.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}

	maxSize := cfg.MaxObjectSize
	if maxSize <= 0 {
		maxSize = defaultMaxObjectSize
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		maxSize: maxSize,
	}, nil
}

// WithBucket returns a store sharing the same client but bound to bucket.
func (s *MinioStore) WithBucket(bucket string) *MinioStore {
	cp := *s
	cp.bucket = bucket
	return &cp
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

// Get downloads the object at key.
func (s *MinioStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	// GetObject is lazy; Stat surfaces missing keys and access errors.
	info, err := obj.Stat()
	if err != nil {
		return nil, translate(key, err)
	}
	if info.Size > s.maxSize {
		return nil, fmt.Errorf("storage: %s: object too large (%d bytes, max %d)", key, info.Size, s.maxSize)
	}

	body, err := io.ReadAll(io.LimitReader(obj, s.maxSize+1))
	if err != nil {
		return nil, translate(key, err)
	}

	return &Object{
		Body:         body,
		ContentType:  info.ContentType,
		CacheControl: info.Metadata.Get("Cache-Control"),
		ETag:         info.ETag,
		LastModified: info.LastModified,
		Expires:      info.Expires,
	}, nil
}

// Put uploads obj under key.
func (s *MinioStore) Put(ctx context.Context, key string, obj *Object) error {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(obj.Body),
		int64(len(obj.Body)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			CacheControl: obj.CacheControl,
			Expires:      obj.Expires,
		},
	)
	if err != nil {
		return translate(key, err)
	}
	return nil
}

// translate maps minio errors onto StatusError so the resolver can classify them.
func translate(key string, err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return fmt.Errorf("minio: %w", err)
	}
	return &StatusError{
		Code: resp.StatusCode,
		Key:  key,
		Body: []byte(resp.Message),
		Err:  fmt.Errorf("minio %s: %w", resp.Code, err),
	}
}
