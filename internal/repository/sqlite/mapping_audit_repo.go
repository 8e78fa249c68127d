package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"certmap/internal/domain"
	"certmap/internal/port"
)

type mappingAuditRepo struct {
	db *sqlx.DB
}

// NewMappingAuditRepo creates a new SQLite-backed AuditRepository.
func NewMappingAuditRepo(db *sqlx.DB) port.AuditRepository {
	return &mappingAuditRepo{db: db}
}

func (r *mappingAuditRepo) Create(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mapping_audit (mapping_id, document_id, mapping, extraction, error, preview, method, accepted_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.MappingID, entry.DocumentID, entry.Mapping, entry.Extraction,
		entry.Error, entry.Preview, entry.Method, entry.AcceptedBy, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("mappingAuditRepo.Create: %w", err)
	}
	return nil
}

func (r *mappingAuditRepo) ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT mapping_id, document_id, mapping, extraction, error, preview, method, accepted_by, created_at
		 FROM mapping_audit
		 WHERE document_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("mappingAuditRepo.ListByDocument: %w", err)
	}
	return entries, nil
}
