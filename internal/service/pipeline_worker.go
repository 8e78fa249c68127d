package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"certmap/internal/domain"
	"certmap/internal/port"
)

// jobTimeout bounds one background run, extraction timeout included.
const jobTimeout = 2 * time.Minute

// JobQueue accepts documents for background processing.
type JobQueue interface {
	Enqueue(ctx context.Context, docID uuid.UUID) error
}

// PipelineWorker processes queued documents one at a time in FIFO order.
type PipelineWorker struct {
	pipeline    *Pipeline
	docRepo     port.DocumentRepository
	broadcaster *StatusBroadcaster
	queue       chan uuid.UUID
	mu          sync.Mutex
}

// NewPipelineWorker creates a worker whose queue holds at most size documents.
func NewPipelineWorker(pipeline *Pipeline, docRepo port.DocumentRepository, broadcaster *StatusBroadcaster, size int) *PipelineWorker {
	if size < 1 {
		size = 1
	}
	return &PipelineWorker{
		pipeline:    pipeline,
		docRepo:     docRepo,
		broadcaster: broadcaster,
		queue:       make(chan uuid.UUID, size),
	}
}

// Enqueue marks docID queued and appends it to the queue. It returns
// domain.ErrQueueFull without touching the document when there is no room.
func (w *PipelineWorker) Enqueue(ctx context.Context, docID uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Only Enqueue sends, under mu, so a free slot seen here stays free.
	if len(w.queue) == cap(w.queue) {
		return domain.ErrQueueFull
	}
	if err := w.docRepo.UpdateStatus(ctx, docID, domain.StatusQueued, ""); err != nil {
		return fmt.Errorf("pipelineWorker.Enqueue: %w", err)
	}
	w.queue <- docID
	w.broadcaster.Publish(domain.StatusEvent{DocumentID: docID, Status: domain.StatusQueued})
	return nil
}

// Pending returns the number of documents waiting in the queue.
func (w *PipelineWorker) Pending() int {
	return len(w.queue)
}

// Start processes the queue until ctx is canceled. It returns once the
// in-flight job has finished.
func (w *PipelineWorker) Start(ctx context.Context) {
	log.Printf("pipelineWorker: started (queue size=%d)", cap(w.queue))

	for {
		select {
		case <-ctx.Done():
			log.Printf("pipelineWorker: shutdown complete (%d document(s) left queued)", len(w.queue))
			return
		case docID := <-w.queue:
			w.process(docID)
		}
	}
}

func (w *PipelineWorker) process(docID uuid.UUID) {
	// A fresh context lets the in-flight job finish during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipelineWorker: job for %s panicked: %v", docID, r)
			_ = w.pipeline.fail(context.WithoutCancel(ctx), docID, nil, panicError(r))
		}
	}()

	log.Printf("pipelineWorker: dispatching document %s", docID)
	if _, err := w.pipeline.Run(ctx, docID, domain.TriggerQueue); err != nil {
		log.Printf("pipelineWorker: document %s: %v", docID, err)
	}
}

// requeueBatch is how many unfinished documents RequeueUnfinished reads at a time.
const requeueBatch = 100

// RequeueUnfinished enqueues documents a previous process left queued or
// processing, oldest first. Documents that no longer fit in the queue are
// reset to ready so they can be submitted again instead of staying queued
// with no job behind them. Call it before accepting uploads.
func (w *PipelineWorker) RequeueUnfinished(ctx context.Context) (int, error) {
	unfinished := []domain.ProcessingStatus{domain.StatusQueued, domain.StatusProcessing}
	seen := make(map[uuid.UUID]struct{})
	n, reset := 0, 0
	for {
		// Requeued documents keep matching, so read past the ones already seen.
		limit := len(seen) + requeueBatch
		docs, err := w.docRepo.ListByStatus(ctx, unfinished, limit)
		if err != nil {
			return n, fmt.Errorf("pipelineWorker.RequeueUnfinished: %w", err)
		}
		for i := range docs {
			id := docs[i].ID
			if _, ok := seen[id]; ok {
				continue
			}
			err := w.Enqueue(ctx, id)
			switch {
			case err == nil:
				seen[id] = struct{}{}
				n++
			case errors.Is(err, domain.ErrQueueFull):
				if err := w.docRepo.UpdateStatus(ctx, id, domain.StatusReady, ""); err != nil {
					return n, fmt.Errorf("pipelineWorker.RequeueUnfinished: reset %s: %w", id, err)
				}
				w.broadcaster.Publish(domain.StatusEvent{DocumentID: id, Status: domain.StatusReady})
				reset++
			default:
				log.Printf("pipelineWorker: requeue %s: %v", id, err)
				seen[id] = struct{}{}
			}
		}
		if len(docs) < limit {
			break
		}
	}
	if reset > 0 {
		log.Printf("pipelineWorker: queue full, reset %d unfinished document(s) to ready", reset)
	}
	return n, nil
}
