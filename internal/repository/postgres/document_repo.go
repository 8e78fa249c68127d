package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"certmap/internal/domain"
	"certmap/internal/port"
)

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `INSERT INTO documents (
		id, file_name, original_name, content_type, file_size, storage_key,
		uploader, ctx, status, mapping_accepted, processing_error,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13
	)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.FileName, doc.OriginalName, doc.ContentType, doc.FileSize, doc.StorageKey,
		doc.Uploader, doc.Context, doc.Status, doc.MappingAccepted, doc.ProcessingError,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("documentRepo.Create: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByID: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) List(ctx context.Context, offset, limit int) ([]domain.Document, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM documents"); err != nil {
		return nil, 0, fmt.Errorf("documentRepo.List count: %w", err)
	}

	var docs []domain.Document
	err := r.db.SelectContext(ctx, &docs,
		`SELECT * FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("documentRepo.List: %w", err)
	}
	return docs, total, nil
}

func (r *documentRepo) ListByStatus(ctx context.Context, statuses []domain.ProcessingStatus, limit int) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT * FROM documents WHERE status IN (?) ORDER BY created_at ASC LIMIT ?`,
		statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.ListByStatus build: %w", err)
	}
	var docs []domain.Document
	if err := r.db.SelectContext(ctx, &docs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("documentRepo.ListByStatus: %w", err)
	}
	return docs, nil
}

func (r *documentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus, processingError string) error {
	query := `UPDATE documents SET status = $1, processing_error = $2, updated_at = $3`
	switch {
	case status == domain.StatusProcessing:
		query += `, processing_started_at = $3, processing_finished_at = NULL`
	case status.IsTerminal():
		query += `, processing_finished_at = $3`
	}
	query += ` WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, status, processingError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateStatus: %w", err)
	}
	return requireRow(result, "documentRepo.UpdateStatus")
}

func (r *documentRepo) SaveExtraction(ctx context.Context, id uuid.UUID, extraction *domain.Extraction) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET extraction = $1, updated_at = $2 WHERE id = $3`,
		extraction, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("documentRepo.SaveExtraction: %w", err)
	}
	return requireRow(result, "documentRepo.SaveExtraction")
}

func (r *documentRepo) SaveMappingUnlessAccepted(ctx context.Context, id uuid.UUID, mapping *domain.Mapping) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET mapping = $1, updated_at = $2
		 WHERE id = $3 AND mapping_accepted = FALSE`,
		mapping, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("documentRepo.SaveMappingUnlessAccepted: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("documentRepo.SaveMappingUnlessAccepted rows: %w", err)
	}
	if rows > 0 {
		return true, nil
	}
	if err := r.mustExist(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *documentRepo) Accept(ctx context.Context, id uuid.UUID, mapping *domain.Mapping, acceptedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET
			mapping = $1, mapping_accepted = TRUE, mapping_accepted_at = $2, updated_at = $2
		 WHERE id = $3 AND mapping_accepted = FALSE`,
		mapping, acceptedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("documentRepo.Accept: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("documentRepo.Accept rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if err := r.mustExist(ctx, id); err != nil {
		return err
	}
	return domain.ErrMappingAccepted
}

func (r *documentRepo) mustExist(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)", id)
	if err != nil {
		return fmt.Errorf("documentRepo.mustExist: %w", err)
	}
	if !exists {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func requireRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
