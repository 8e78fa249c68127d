package local_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certmap/internal/domain"
	"certmap/internal/port"
	"certmap/internal/storage/local"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	out, err := store.Upload(ctx, port.UploadInput{
		Key:         "documents/abc/cert.pdf",
		Body:        bytes.NewReader([]byte("%PDF-1.4")),
		ContentType: "application/pdf",
		Size:        8,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ETag)

	data, err := store.Download(ctx, "documents/abc/cert.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	url, err := store.GetPresignedURL(ctx, "documents/abc/cert.pdf")
	require.NoError(t, err)
	assert.Empty(t, url)

	require.NoError(t, store.Delete(ctx, "documents/abc/cert.pdf"))
	require.NoError(t, store.Delete(ctx, "documents/abc/cert.pdf"))

	_, err = store.Download(ctx, "documents/abc/cert.pdf")
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Upload(ctx, port.UploadInput{Key: "../outside.pdf", Body: bytes.NewReader(nil)})
	assert.Error(t, err)

	_, err = store.Download(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInputNotFound)
}

func TestLocalStorage_UploadHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store, err := local.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Upload(ctx, port.UploadInput{Key: "a.pdf", Body: bytes.NewReader([]byte("data"))})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Download(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}
