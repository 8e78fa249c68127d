package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"certmap/internal/domain"
)

// MockDocumentRepo is a mock implementation of port.DocumentRepository.
type MockDocumentRepo struct {
	mock.Mock
}

func (m *MockDocumentRepo) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockDocumentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) List(ctx context.Context, offset, limit int) ([]domain.Document, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Document), args.Int(1), args.Error(2)
}

func (m *MockDocumentRepo) ListByStatus(ctx context.Context, statuses []domain.ProcessingStatus, limit int) ([]domain.Document, error) {
	args := m.Called(ctx, statuses, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Document), args.Error(1)
}

func (m *MockDocumentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, processingError string) error {
	args := m.Called(ctx, id, status, processingError)
	return args.Error(0)
}

func (m *MockDocumentRepo) SaveExtraction(ctx context.Context, id uuid.UUID, extraction *domain.Extraction) error {
	args := m.Called(ctx, id, extraction)
	return args.Error(0)
}

func (m *MockDocumentRepo) SaveMappingUnlessAccepted(ctx context.Context, id uuid.UUID, mapping *domain.Mapping) (bool, error) {
	args := m.Called(ctx, id, mapping)
	return args.Bool(0), args.Error(1)
}

func (m *MockDocumentRepo) Accept(ctx context.Context, id uuid.UUID, mapping *domain.Mapping, acceptedAt time.Time) error {
	args := m.Called(ctx, id, mapping, acceptedAt)
	return args.Error(0)
}
