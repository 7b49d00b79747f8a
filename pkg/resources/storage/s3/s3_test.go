package s3

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
)

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.Equal(t, "s3", backend.Name())
		assert.Equal(t, "test-bucket", backend.Bucket())
		assert.Equal(t, []string{"test-bucket.s3.us-east-1.amazonaws.com"}, backend.Hosts())
	})

	t.Run("SignedURLIsLocal", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		signed, err := backend.SignedURL(context.Background(), resources.ObjectRef{
			Kind: resources.KindDocument, PublicID: "portal/resources/a", Format: "pdf",
		}, 300*time.Second)
		require.NoError(t, err)
		assert.Contains(t, signed, "http://localhost:9000/test-bucket/document/v1/portal/resources/a.pdf")
		assert.Contains(t, signed, "X-Amz-Expires=300")
	})
}

func TestDeliveryBase(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"PublicBase", Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{"PathStyle", Config{Bucket: "b", Endpoint: "http://localhost:9000", UsePathStyle: true}, "http://localhost:9000/b"},
		{"VirtualHost", Config{Bucket: "b", Endpoint: "https://storage.example.com"}, "https://b.storage.example.com"},
		{"AWS", Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deliveryBase(tt.config))
		})
	}
}

// TestS3Backend_MinIO runs against a live MinIO when MINIO_INTEGRATION_TEST is set
func TestS3Backend_MinIO(t *testing.T) {
	if os.Getenv("MINIO_INTEGRATION_TEST") == "" {
		t.Skip("Skipping MinIO integration test. Set MINIO_INTEGRATION_TEST=1 to run")
	}

	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	backend, err := New(Config{
		Region:                 "us-east-1",
		Bucket:                 "resources-test",
		AccessKeyID:            getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		SecretAccessKey:        getEnv("MINIO_SECRET_KEY", "minioadmin"),
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Ping(ctx))

	publicID := "portal/resources/" + time.Now().Format("20060102150405") + "-it"
	ref := resources.ObjectRef{Kind: resources.KindDocument, PublicID: publicID, Format: "pdf"}
	asset, err := backend.Persist(ctx, bytes.NewReader([]byte("%PDF-1.4")), resources.PersistParams{
		Kind: ref.Kind, PublicID: publicID, Format: "pdf", MediaType: "application/pdf", Size: 8,
	})
	require.NoError(t, err)
	defer backend.Delete(ctx, ref)

	stat, err := backend.Stat(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, asset.URL, stat.URL)
	assert.Equal(t, int64(8), stat.Size)

	_, err = backend.Stat(ctx, resources.ObjectRef{Kind: resources.KindImage, PublicID: publicID, Format: "pdf"})
	assert.ErrorIs(t, err, resources.ErrNotFound)

	listed, err := backend.List(ctx, resources.KindDocument, publicID, 5)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, publicID, listed[0].PublicID)

	signed, err := backend.SignedURL(ctx, ref, time.Minute)
	require.NoError(t, err)
	resp, err := http.Get(signed)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
