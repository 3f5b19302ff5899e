package storage

import (
	"context"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestMinio starts a MinIO container and returns a store bound to a fresh bucket.
func setupTestMinio(t *testing.T) *MinioStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	require.NoError(t, client.MakeBucket(ctx, "processed", minio.MakeBucketOptions{}))

	store, err := NewMinioStore(MinioConfig{Client: client, Bucket: "processed"})
	require.NoError(t, err)
	return store
}

func TestIntegration_MinioStoreRoundTrip(t *testing.T) {
	store := setupTestMinio(t)
	ctx := context.Background()

	key := "photos/cat.jpg/filters%3Aformat%28webp%29"

	_, err := store.Get(ctx, key)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))

	require.NoError(t, store.Put(ctx, key, &Object{
		Body:         []byte("webp-bytes"),
		ContentType:  "image/webp",
		CacheControl: "max-age=60",
	}))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "webp-bytes", string(got.Body))
	assert.Equal(t, "image/webp", got.ContentType)
	assert.Equal(t, "max-age=60", got.CacheControl)
	assert.NotEmpty(t, got.ETag)
}

func TestIntegration_MinioStoreMissingBucket(t *testing.T) {
	store := setupTestMinio(t).WithBucket("does-not-exist")

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
}

func TestMinioConfigValidation(t *testing.T) {
	_, err := NewMinioStore(MinioConfig{Endpoint: "localhost:9000"})
	require.ErrorContains(t, err, "bucket is required")

	_, err = NewMinioStore(MinioConfig{Bucket: "b"})
	require.ErrorContains(t, err, "endpoint is required")

	s, err := NewMinioStore(MinioConfig{Endpoint: "localhost:9000", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", s.Bucket())
	assert.Equal(t, "other", s.WithBucket("other").Bucket())
	assert.Equal(t, "b", s.Bucket())
}
