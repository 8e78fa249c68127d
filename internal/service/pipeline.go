package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"certmap/internal/domain"
	"certmap/internal/mapper"
	"certmap/internal/normalizer"
	"certmap/internal/port"
)

var (
	errSkippedAccepted = errors.New("skipped: " + domain.SkipReasonMappingAccepted)
	errInternal        = errors.New("internal error")
)

// RunResult is the terminal outcome of one pipeline run.
type RunResult struct {
	Status  domain.ProcessingStatus
	Mapping *domain.Mapping
}

// Pipeline runs extract, map and normalize for one document and records
// the outcome. Synchronous uploads, remaps and the background worker all
// go through Run.
type Pipeline struct {
	docRepo     port.DocumentRepository
	storage     port.ObjectStorage
	extractor   port.LayoutExtractor
	audit       *AuditRecorder
	broadcaster *StatusBroadcaster
}

// NewPipeline creates a new Pipeline.
func NewPipeline(
	docRepo port.DocumentRepository,
	storage port.ObjectStorage,
	extractor port.LayoutExtractor,
	audit *AuditRecorder,
	broadcaster *StatusBroadcaster,
) *Pipeline {
	return &Pipeline{
		docRepo:     docRepo,
		storage:     storage,
		extractor:   extractor,
		audit:       audit,
		broadcaster: broadcaster,
	}
}

// Run processes docID. A returned error means the run ended in status
// error (or never started); a skipped run is not an error. A panic once
// processing has begun ends the run in status error like any other failure.
func (p *Pipeline) Run(ctx context.Context, docID uuid.UUID, trigger domain.Trigger) (res *RunResult, err error) {
	doc, err := p.docRepo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.IsPDF() {
		return nil, fmt.Errorf("pipeline.Run %s: %w", docID, domain.ErrUnsupportedFileType)
	}

	// Terminal state must be written even if the caller goes away.
	persistCtx := context.WithoutCancel(ctx)

	if err := p.docRepo.UpdateStatus(persistCtx, docID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("pipeline.Run: %w", err)
	}
	p.broadcaster.Publish(domain.StatusEvent{DocumentID: docID, Status: domain.StatusProcessing})
	log.Printf("pipeline.Run: processing document %s (trigger=%s)", docID, trigger)

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, p.fail(persistCtx, docID, nil, panicError(r))
		}
	}()

	data, err := p.storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, p.fail(persistCtx, docID, nil, err)
	}
	ext, err := p.extractor.Extract(ctx, data)
	if err != nil {
		return nil, p.fail(persistCtx, docID, nil, err)
	}
	if err := p.docRepo.SaveExtraction(persistCtx, docID, ext); err != nil {
		log.Printf("pipeline.Run: failed to persist extraction for %s: %v", docID, err)
	}

	mapping := normalizer.Normalize(mapper.Map(ext))

	saved, err := p.docRepo.SaveMappingUnlessAccepted(persistCtx, docID, mapping)
	if err != nil {
		return nil, p.fail(persistCtx, docID, ext, err)
	}

	if !saved {
		p.setStatus(persistCtx, docID, domain.StatusSkipped, "")
		p.audit.Record(persistCtx, AuditRecord{
			DocumentID: docID,
			Mapping:    mapping,
			Extraction: ext,
			Err:        errSkippedAccepted,
			Method:     domain.AuditMethodHeuristic,
		})
		p.broadcaster.Publish(domain.StatusEvent{
			DocumentID: docID,
			Status:     domain.StatusSkipped,
			Reason:     domain.SkipReasonMappingAccepted,
		})
		log.Printf("pipeline.Run: document %s skipped, mapping already accepted", docID)
		return &RunResult{Status: domain.StatusSkipped}, nil
	}

	p.setStatus(persistCtx, docID, domain.StatusDone, "")
	p.audit.Record(persistCtx, AuditRecord{
		DocumentID: docID,
		Mapping:    mapping,
		Extraction: ext,
		Method:     domain.AuditMethodHeuristic,
	})
	p.broadcaster.Publish(domain.StatusEvent{DocumentID: docID, Status: domain.StatusDone, Mapping: mapping})
	log.Printf("pipeline.Run: document %s done", docID)
	return &RunResult{Status: domain.StatusDone, Mapping: mapping}, nil
}

// fail moves docID to status error and returns err.
func (p *Pipeline) fail(ctx context.Context, docID uuid.UUID, ext *domain.Extraction, err error) error {
	log.Printf("pipeline.Run: document %s failed (retryable=%t): %v", docID, domain.IsRetryable(err), err)
	p.setStatus(ctx, docID, domain.StatusError, err.Error())
	p.audit.Record(ctx, AuditRecord{
		DocumentID: docID,
		Extraction: ext,
		Err:        err,
		Method:     domain.AuditMethodHeuristic,
	})
	p.broadcaster.Publish(domain.StatusEvent{DocumentID: docID, Status: domain.StatusError, Error: err.Error()})
	return err
}

func panicError(r interface{}) error {
	return fmt.Errorf("%w: %v", errInternal, r)
}

func (p *Pipeline) setStatus(ctx context.Context, docID uuid.UUID, status domain.ProcessingStatus, processingError string) {
	if err := p.docRepo.UpdateStatus(ctx, docID, status, processingError); err != nil {
		log.Printf("pipeline.Run: failed to set status %s for %s: %v", status, docID, err)
	}
}
