package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"certmap/internal/domain"
)

// DocumentRepository defines the contract for document persistence.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, offset, limit int) ([]domain.Document, int, error)
	// ListByStatus returns documents in any of statuses, oldest first.
	ListByStatus(ctx context.Context, statuses []domain.ProcessingStatus, limit int) ([]domain.Document, error)
	// UpdateStatus sets the status and error text; entering processing stamps
	// the start time and terminal statuses stamp the finish time.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, processingError string) error
	SaveExtraction(ctx context.Context, id uuid.UUID, extraction *domain.Extraction) error
	// SaveMappingUnlessAccepted stores mapping only while the document is not
	// accepted. saved is false when the accepted flag was already set.
	SaveMappingUnlessAccepted(ctx context.Context, id uuid.UUID, mapping *domain.Mapping) (saved bool, err error)
	// Accept stores mapping and sets the accepted flag in one step. It returns
	// domain.ErrMappingAccepted if the flag was already set.
	Accept(ctx context.Context, id uuid.UUID, mapping *domain.Mapping, acceptedAt time.Time) error
}

// AuditRepository defines the contract for the append-only mapping audit log.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	// ListByDocument returns entries newest first.
	ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]domain.AuditEntry, error)
}
