package memory_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-resources/pkg/resources"
	memorystorage "github.com/tendant/simple-resources/pkg/resources/storage/memory"
)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New(memorystorage.WithBaseURL("https://cdn.example.com"))
	ctx := context.Background()
	ref := resources.ObjectRef{Kind: resources.KindDocument, PublicID: "portal/resources/123-x", Format: "pdf"}

	t.Run("Persist", func(t *testing.T) {
		asset, err := backend.Persist(ctx, strings.NewReader("hello"), resources.PersistParams{
			Kind:      ref.Kind,
			PublicID:  ref.PublicID,
			Format:    ref.Format,
			MediaType: "application/pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/document/v1/portal/resources/123-x.pdf", asset.URL)
		assert.Equal(t, int64(5), asset.Size)
		assert.Equal(t, "v1", asset.Version)
	})

	t.Run("Stat", func(t *testing.T) {
		asset, err := backend.Stat(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, resources.KindDocument, asset.Kind)
		assert.Equal(t, "application/pdf", asset.ContentType)

		_, err = backend.Stat(ctx, resources.ObjectRef{Kind: resources.KindImage, PublicID: ref.PublicID, Format: "pdf"})
		assert.ErrorIs(t, err, resources.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		backend.Put(resources.ObjectRef{Kind: resources.KindDocument, PublicID: "portal/resources/123-x-copy", Format: "docx"}, "application/msword", []byte("x"))
		assets, err := backend.List(ctx, resources.KindDocument, "portal/resources/123-x", 5)
		require.NoError(t, err)
		require.Len(t, assets, 2)
		assert.Equal(t, "portal/resources/123-x-copy", assets[0].PublicID)

		limited, err := backend.List(ctx, resources.KindDocument, "portal/resources/123", 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, ref))
		require.NoError(t, backend.Delete(ctx, ref))
		_, err := backend.Stat(ctx, ref)
		assert.ErrorIs(t, err, resources.ErrNotFound)
	})
}

func TestMemoryBackend_ServeHTTP(t *testing.T) {
	backend := memorystorage.New()
	server := httptest.NewServer(backend)
	defer server.Close()
	backend.SetBaseURL(server.URL)

	ctx := context.Background()
	ref := resources.ObjectRef{Kind: resources.KindImage, PublicID: "ns/photo", Format: "png"}
	asset := backend.Put(ref, "image/png", []byte("png-bytes"))

	resp, err := http.Get(asset.URL)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-bytes", string(body))
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	require.NoError(t, backend.SetRestricted(ref, true))

	resp, err = http.Get(asset.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	signed, err := backend.SignedURL(ctx, ref, 300*time.Second)
	require.NoError(t, err)
	resp, err = http.Get(signed)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/image/v1/ns/missing.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, []string{strings.TrimPrefix(server.URL, "http://")}, backend.Hosts())
}
