package presigned

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignAndValidate(t *testing.T) {
	signer := New(WithSecretKey("0123456789abcdef0123456789abcdef"))

	signed, err := signer.SignPath("/document/v1/ns/a.pdf", 300*time.Second)
	require.NoError(t, err)
	assert.Contains(t, signed, "signature=")
	assert.Contains(t, signed, "expires=")

	req := httptest.NewRequest("GET", signed, nil)
	assert.NoError(t, signer.ValidateRequest(req))
}

func TestSigner_Rejections(t *testing.T) {
	now := time.Unix(1700000000, 0)
	signer := New(WithSecretKey("secret"), WithClock(func() time.Time { return now }))

	signed, err := signer.SignPath("/image/v1/ns/a.png", time.Minute)
	require.NoError(t, err)

	t.Run("TamperedPath", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/image/v1/ns/b.png"+signed[len("/image/v1/ns/a.png"):], nil)
		assert.ErrorIs(t, signer.ValidateRequest(req), ErrInvalidSignature)
	})

	t.Run("MissingSignature", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/image/v1/ns/a.png", nil)
		assert.ErrorIs(t, signer.ValidateRequest(req), ErrMissingSignature)
	})

	t.Run("Expired", func(t *testing.T) {
		later := New(WithSecretKey("secret"), WithClock(func() time.Time { return now.Add(2 * time.Minute) }))
		req := httptest.NewRequest("GET", signed, nil)
		assert.ErrorIs(t, later.ValidateRequest(req), ErrExpired)
	})

	t.Run("NoKey", func(t *testing.T) {
		_, err := New().SignPath("/x", time.Minute)
		assert.ErrorIs(t, err, ErrNoSecretKey)
	})
}
