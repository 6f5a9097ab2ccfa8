package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
	assert.Equal(t, "https://localhost:9000", normaliseEndpoint("localhost:9000", true))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
}

func TestNewValidates(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestExistsAgainstFakeStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/journal/trades/2026/10/15.jsonl":
			w.WriteHeader(http.StatusOK)
		case "/journal/trades/2026/10/16.jsonl":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "journal",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	store := NewStore(c)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "trades/2026/10/15.jsonl")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "trades/2026/10/16.jsonl")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Exists(ctx, "secret")
	assert.Error(t, err)
}
