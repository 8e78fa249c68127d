package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document is an uploaded file and the state of its mapping pipeline.
type Document struct {
	ID                   uuid.UUID        `db:"id" json:"id"`
	FileName             string           `db:"file_name" json:"file_name"`
	OriginalName         string           `db:"original_name" json:"original_name"`
	ContentType          string           `db:"content_type" json:"content_type"`
	FileSize             int64            `db:"file_size" json:"file_size"`
	StorageKey           string           `db:"storage_key" json:"storage_key"`
	Uploader             string           `db:"uploader" json:"uploader"`
	Context              string           `db:"ctx" json:"ctx"`
	Status               ProcessingStatus `db:"status" json:"status"`
	Mapping              *Mapping         `db:"mapping" json:"mapping,omitempty"`
	Extraction           *Extraction      `db:"extraction" json:"-"`
	MappingAccepted      bool             `db:"mapping_accepted" json:"mapping_accepted"`
	MappingAcceptedAt    *time.Time       `db:"mapping_accepted_at" json:"mapping_accepted_at,omitempty"`
	ProcessingStartedAt  *time.Time       `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingFinishedAt *time.Time       `db:"processing_finished_at" json:"processing_finished_at,omitempty"`
	ProcessingError      string           `db:"processing_error" json:"processing_error,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// IsPDF reports whether the document can go through the mapping pipeline.
func (d *Document) IsPDF() bool {
	return d.ContentType == AllowedFileTypes[FileTypePDF]
}

// AuditEntry is an immutable record of one mapping outcome for a document.
type AuditEntry struct {
	MappingID  uuid.UUID   `db:"mapping_id" json:"mapping_id"`
	DocumentID uuid.UUID   `db:"document_id" json:"document_id"`
	Mapping    *Mapping    `db:"mapping" json:"mapping,omitempty"`
	Extraction *Extraction `db:"extraction" json:"extraction,omitempty"`
	Error      string      `db:"error" json:"error,omitempty"`
	Preview    string      `db:"preview" json:"preview"`
	Method     AuditMethod `db:"method" json:"method"`
	AcceptedBy string      `db:"accepted_by" json:"accepted_by,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// StatusEvent is pushed to subscribers whenever a document changes state.
type StatusEvent struct {
	DocumentID uuid.UUID        `json:"document_id"`
	Status     ProcessingStatus `json:"status"`
	Mapping    *Mapping         `json:"mapping,omitempty"`
	Error      string           `json:"error,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}
