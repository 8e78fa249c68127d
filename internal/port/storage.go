package port

import (
	"context"
	"io"
)

// UploadInput encapsulates the parameters needed to store an uploaded file.
type UploadInput struct {
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
}

// UploadOutput contains the result of a successful upload.
type UploadOutput struct {
	Location string
	ETag     string
}

// ObjectStorage abstracts where uploaded files live. Download returns
// domain.ErrInputNotFound for a missing key.
type ObjectStorage interface {
	Upload(ctx context.Context, input UploadInput) (*UploadOutput, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// GetPresignedURL returns a time-limited download URL, or "" when the
	// backend serves files itself.
	GetPresignedURL(ctx context.Context, key string) (string, error)
}
