package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"certmap/internal/domain"
	"certmap/internal/port"
)

// previewValueLength caps each value in an audit preview.
const previewValueLength = 200

// AuditRecord is the input to AuditRecorder.Record.
type AuditRecord struct {
	DocumentID uuid.UUID
	Mapping    *domain.Mapping
	Extraction *domain.Extraction
	Err        error
	Method     domain.AuditMethod
	AcceptedBy string
}

// AuditRecorder appends mapping outcomes to the audit log. Write failures
// are logged and never returned.
type AuditRecorder struct {
	repo port.AuditRepository
	now  func() time.Time
}

// NewAuditRecorder creates a new AuditRecorder.
func NewAuditRecorder(repo port.AuditRepository) *AuditRecorder {
	return &AuditRecorder{repo: repo, now: time.Now}
}

// Record builds and stores one audit entry and returns it.
func (r *AuditRecorder) Record(ctx context.Context, rec AuditRecord) *domain.AuditEntry {
	entry := &domain.AuditEntry{
		MappingID:  uuid.New(),
		DocumentID: rec.DocumentID,
		Mapping:    rec.Mapping,
		Extraction: rec.Extraction,
		Preview:    Preview(rec.Mapping),
		Method:     rec.Method,
		AcceptedBy: rec.AcceptedBy,
		CreatedAt:  r.now().UTC(),
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}

	log.Printf("mapping_audit: document=%s mapping=%s method=%s accepted_by=%q error=%q preview=%s",
		entry.DocumentID, entry.MappingID, entry.Method, entry.AcceptedBy, entry.Error, entry.Preview)

	if err := r.repo.Create(ctx, entry); err != nil {
		log.Printf("auditRecorder.Record: failed to write audit entry for document %s: %v", rec.DocumentID, err)
	}
	return entry
}

// Preview renders a mapping as a JSON object of field name to display value.
func Preview(m *domain.Mapping) string {
	b, err := json.Marshal(m.Summary(previewValueLength))
	if err != nil {
		return "{}"
	}
	return string(b)
}
