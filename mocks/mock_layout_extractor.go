package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"certmap/internal/domain"
)

// MockLayoutExtractor is a mock implementation of port.LayoutExtractor.
type MockLayoutExtractor struct {
	mock.Mock
}

func (m *MockLayoutExtractor) Extract(ctx context.Context, data []byte) (*domain.Extraction, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Extraction), args.Error(1)
}
