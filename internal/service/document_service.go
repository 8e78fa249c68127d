package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"certmap/internal/domain"
	"certmap/internal/mapper"
	"certmap/internal/normalizer"
	"certmap/internal/port"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 100
	previewAuditLimit = 5
)

// DocumentConfig holds upload limits and the synchronous processing threshold.
type DocumentConfig struct {
	MaxFileSize  int64
	MaxFiles     int
	SyncMaxBytes int64
}

// UploadFile is one file of a multipart upload.
type UploadFile struct {
	Name string
	Size int64
	Body io.Reader
}

// UploadInput is the DTO for uploading one or more files.
type UploadInput struct {
	Files    []UploadFile
	Uploader string
	Context  string
	Trigger  domain.Trigger
}

// FileContent is how a stored upload is handed back to a client: either a
// URL to redirect to, or the bytes themselves.
type FileContent struct {
	Document *domain.Document
	URL      string
	Data     []byte
}

// MappingPreview is a compact view of a document's mapping state.
type MappingPreview struct {
	DocumentID      uuid.UUID               `json:"document_id"`
	Status          domain.ProcessingStatus `json:"status"`
	MappingAccepted bool                    `json:"mapping_accepted"`
	Summary         map[string]string       `json:"summary"`
	Audits          []domain.AuditEntry     `json:"audits"`
}

// DocumentService defines the document and mapping contract.
type DocumentService interface {
	Upload(ctx context.Context, input *UploadInput) ([]domain.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, offset, limit int) ([]domain.Document, int, error)
	GetFile(ctx context.Context, id uuid.UUID) (*FileContent, error)
	Extract(ctx context.Context, id uuid.UUID) (*domain.Extraction, error)
	GetExtraction(ctx context.Context, id uuid.UUID) (*domain.Extraction, error)
	GetMapping(ctx context.Context, id uuid.UUID) (*domain.Mapping, error)
	Preview(ctx context.Context, id uuid.UUID) (*MappingPreview, error)
	Remap(ctx context.Context, id uuid.UUID) (*domain.Mapping, error)
	MapExtraction(ctx context.Context, ext *domain.Extraction) *domain.Mapping
	Accept(ctx context.Context, id uuid.UUID, mapping *domain.Mapping, acceptedBy string) (*domain.Document, error)
	GetAudit(ctx context.Context, id uuid.UUID, limit int) ([]domain.AuditEntry, error)
	Subscribe(ctx context.Context, id uuid.UUID) (<-chan domain.StatusEvent, func(), error)
}

type documentService struct {
	docRepo     port.DocumentRepository
	auditRepo   port.AuditRepository
	storage     port.ObjectStorage
	extractor   port.LayoutExtractor
	pipeline    *Pipeline
	queue       JobQueue
	audit       *AuditRecorder
	broadcaster *StatusBroadcaster
	cfg         DocumentConfig
}

// NewDocumentService creates a new DocumentService implementation.
func NewDocumentService(
	docRepo port.DocumentRepository,
	auditRepo port.AuditRepository,
	storage port.ObjectStorage,
	extractor port.LayoutExtractor,
	pipeline *Pipeline,
	queue JobQueue,
	audit *AuditRecorder,
	broadcaster *StatusBroadcaster,
	cfg DocumentConfig,
) DocumentService {
	return &documentService{
		docRepo:     docRepo,
		auditRepo:   auditRepo,
		storage:     storage,
		extractor:   extractor,
		pipeline:    pipeline,
		queue:       queue,
		audit:       audit,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// storageName turns a client file name into a safe storage file name.
func storageName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = strings.Trim(unsafeNameChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "upload"
	}
	return base
}

func fileType(name string) (domain.FileType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	ft, ok := domain.AllowedExtensions[ext]
	return ft, ok
}

func (s *documentService) validateUpload(input *UploadInput) error {
	if len(input.Files) == 0 {
		return fmt.Errorf("no files in upload: %w", domain.ErrInputNotFound)
	}
	if s.cfg.MaxFiles > 0 && len(input.Files) > s.cfg.MaxFiles {
		return fmt.Errorf("%d files, at most %d allowed: %w", len(input.Files), s.cfg.MaxFiles, domain.ErrTooManyFiles)
	}
	for _, f := range input.Files {
		if _, ok := fileType(f.Name); !ok {
			return fmt.Errorf("%s: %w", f.Name, domain.ErrUnsupportedFileType)
		}
		if s.cfg.MaxFileSize > 0 && f.Size > s.cfg.MaxFileSize {
			return fmt.Errorf("%s: %w", f.Name, domain.ErrFileTooLarge)
		}
	}
	return nil
}

func (s *documentService) Upload(ctx context.Context, input *UploadInput) ([]domain.Document, error) {
	if err := s.validateUpload(input); err != nil {
		return nil, err
	}
	trigger := input.Trigger
	if trigger == "" {
		trigger = domain.TriggerUpload
	}

	docs := make([]domain.Document, 0, len(input.Files))
	for _, f := range input.Files {
		doc, err := s.store(ctx, f, input)
		if err != nil {
			return docs, err
		}
		if doc.IsPDF() {
			s.dispatch(ctx, doc, trigger)
			if fresh, err := s.docRepo.GetByID(ctx, doc.ID); err == nil {
				doc = fresh
			}
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (s *documentService) store(ctx context.Context, f UploadFile, input *UploadInput) (*domain.Document, error) {
	ft, _ := fileType(f.Name)
	id := uuid.New()
	name := storageName(f.Name)
	doc := &domain.Document{
		ID:           id,
		FileName:     name,
		OriginalName: f.Name,
		ContentType:  domain.AllowedFileTypes[ft],
		FileSize:     f.Size,
		StorageKey:   fmt.Sprintf("documents/%s/%s", id, name),
		Uploader:     input.Uploader,
		Context:      input.Context,
		Status:       domain.StatusReady,
	}

	if _, err := s.storage.Upload(ctx, port.UploadInput{
		Key:         doc.StorageKey,
		Body:        f.Body,
		ContentType: doc.ContentType,
		Size:        f.Size,
	}); err != nil {
		log.Printf("documentService.Upload: storing %s failed: %v", f.Name, err)
		return nil, fmt.Errorf("%s: %w", f.Name, domain.ErrUploadFailed)
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(ctx, doc.StorageKey); delErr != nil {
			log.Printf("documentService.Upload: cleanup of %s failed: %v", doc.StorageKey, delErr)
		}
		return nil, fmt.Errorf("documentService.Upload: %w", err)
	}
	log.Printf("documentService.Upload: stored %s as document %s (%d bytes)", f.Name, doc.ID, f.Size)
	return doc, nil
}

// dispatch runs small PDFs inline and queues large ones. Either way the
// outcome is recorded on the document, so errors are only logged here.
func (s *documentService) dispatch(ctx context.Context, doc *domain.Document, trigger domain.Trigger) {
	if doc.FileSize <= s.cfg.SyncMaxBytes {
		if _, err := s.pipeline.Run(ctx, doc.ID, trigger); err != nil {
			log.Printf("documentService.Upload: inline processing of %s failed: %v", doc.ID, err)
		}
		return
	}
	if err := s.queue.Enqueue(ctx, doc.ID); err != nil {
		log.Printf("documentService.Upload: enqueue of %s failed: %v", doc.ID, err)
	}
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	return s.docRepo.GetByID(ctx, id)
}

func (s *documentService) List(ctx context.Context, offset, limit int) ([]domain.Document, int, error) {
	return s.docRepo.List(ctx, offset, limit)
}

func (s *documentService) GetFile(ctx context.Context, id uuid.UUID) (*FileContent, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	url, err := s.storage.GetPresignedURL(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("documentService.GetFile: %w", err)
	}
	if url != "" {
		return &FileContent{Document: doc, URL: url}, nil
	}
	data, err := s.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("documentService.GetFile: %w", err)
	}
	return &FileContent{Document: doc, Data: data}, nil
}

func (s *documentService) Extract(ctx context.Context, id uuid.UUID) (*domain.Extraction, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsPDF() {
		return nil, domain.ErrUnsupportedFileType
	}
	data, err := s.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("documentService.Extract: %w", err)
	}
	ext, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("documentService.Extract: %w", err)
	}
	if err := s.docRepo.SaveExtraction(ctx, id, ext); err != nil {
		return nil, fmt.Errorf("documentService.Extract: %w", err)
	}
	return ext, nil
}

func (s *documentService) GetExtraction(ctx context.Context, id uuid.UUID) (*domain.Extraction, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Extraction != nil {
		return doc.Extraction, nil
	}
	if doc.Status.InProgress() {
		return nil, domain.ErrProcessingInProgress
	}
	return nil, domain.ErrExtractionNotFound
}

func (s *documentService) GetMapping(ctx context.Context, id uuid.UUID) (*domain.Mapping, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.MappingAccepted && doc.Mapping != nil {
		return normalizer.Normalize(doc.Mapping), nil
	}
	switch {
	case doc.Status.InProgress():
		return nil, domain.ErrProcessingInProgress
	case doc.Status == domain.StatusError:
		return nil, fmt.Errorf("%s: %w", doc.ProcessingError, domain.ErrProcessingFailed)
	case doc.Mapping == nil:
		return nil, domain.ErrMappingNotFound
	}
	return normalizer.Normalize(doc.Mapping), nil
}

func (s *documentService) Preview(ctx context.Context, id uuid.UUID) (*MappingPreview, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	audits, err := s.auditRepo.ListByDocument(ctx, id, previewAuditLimit)
	if err != nil {
		return nil, fmt.Errorf("documentService.Preview: %w", err)
	}
	for i := range audits {
		audits[i].Extraction = nil
	}
	if audits == nil {
		audits = []domain.AuditEntry{}
	}
	return &MappingPreview{
		DocumentID:      doc.ID,
		Status:          doc.Status,
		MappingAccepted: doc.MappingAccepted,
		Summary:         normalizer.Normalize(doc.Mapping).Summary(previewValueLength),
		Audits:          audits,
	}, nil
}

func (s *documentService) Remap(ctx context.Context, id uuid.UUID) (*domain.Mapping, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.MappingAccepted {
		return nil, domain.ErrMappingAccepted
	}
	if doc.Mapping != nil {
		return normalizer.Normalize(doc.Mapping), nil
	}
	if doc.Status.InProgress() {
		return nil, domain.ErrProcessingInProgress
	}

	result, err := s.pipeline.Run(ctx, id, domain.TriggerRemap)
	if err != nil {
		return nil, err
	}
	if result.Status == domain.StatusSkipped {
		return nil, domain.ErrMappingAccepted
	}
	return result.Mapping, nil
}

func (s *documentService) MapExtraction(_ context.Context, ext *domain.Extraction) *domain.Mapping {
	return normalizer.Normalize(mapper.Map(ext))
}

func (s *documentService) Accept(ctx context.Context, id uuid.UUID, mapping *domain.Mapping, acceptedBy string) (*domain.Document, error) {
	if _, err := s.docRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	normalized := normalizer.Normalize(mapping)
	if normalized == nil {
		return nil, domain.ErrInvalidMapping
	}

	if err := s.docRepo.Accept(ctx, id, normalized, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrMappingAccepted) {
			return nil, err
		}
		return nil, fmt.Errorf("documentService.Accept: %w", err)
	}

	s.audit.Record(ctx, AuditRecord{
		DocumentID: id,
		Mapping:    normalized,
		Method:     domain.AuditMethodUserAccept,
		AcceptedBy: acceptedBy,
	})

	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.broadcaster.Publish(domain.StatusEvent{DocumentID: id, Status: doc.Status, Mapping: normalized})
	log.Printf("documentService.Accept: mapping for %s accepted by %q", id, acceptedBy)
	return doc, nil
}

func (s *documentService) GetAudit(ctx context.Context, id uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	if _, err := s.docRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := s.auditRepo.ListByDocument(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("documentService.GetAudit: %w", err)
	}
	return entries, nil
}

func (s *documentService) Subscribe(ctx context.Context, id uuid.UUID) (<-chan domain.StatusEvent, func(), error) {
	return s.broadcaster.Subscribe(id, func() (domain.StatusEvent, error) {
		doc, err := s.docRepo.GetByID(ctx, id)
		if err != nil {
			return domain.StatusEvent{}, err
		}
		current := domain.StatusEvent{
			DocumentID: id,
			Status:     doc.Status,
			Error:      doc.ProcessingError,
		}
		if doc.Status == domain.StatusDone || doc.MappingAccepted {
			current.Mapping = doc.Mapping
		}
		if doc.Status == domain.StatusSkipped {
			current.Reason = domain.SkipReasonMappingAccepted
		}
		return current, nil
	})
}
