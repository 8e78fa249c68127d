package port

import (
	"context"

	"certmap/internal/domain"
)

// LayoutExtractor turns raw document bytes into positioned page text.
type LayoutExtractor interface {
	Extract(ctx context.Context, data []byte) (*domain.Extraction, error)
}
