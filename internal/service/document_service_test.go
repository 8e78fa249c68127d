package service_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"certmap/internal/config"
	"certmap/internal/domain"
	"certmap/internal/port"
	"certmap/internal/repository/sqlite"
	"certmap/internal/service"
	"certmap/internal/storage/local"
	"certmap/mocks"
)

type harness struct {
	svc         service.DocumentService
	worker      *service.PipelineWorker
	pipeline    *service.Pipeline
	recorder    *service.AuditRecorder
	store       port.ObjectStorage
	docs        port.DocumentRepository
	audits      port.AuditRepository
	broadcaster *service.StatusBroadcaster
	extractor   *mocks.MockLayoutExtractor
}

func newHarness(t *testing.T, cfg service.DocumentConfig, queueSize int) *harness {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.NewDB(&config.DBConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(dir, "certmap.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := local.NewLocalStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	docs := sqlite.NewDocumentRepo(db)
	audits := sqlite.NewMappingAuditRepo(db)
	extractor := new(mocks.MockLayoutExtractor)
	broadcaster := service.NewStatusBroadcaster()
	recorder := service.NewAuditRecorder(audits)
	pipeline := service.NewPipeline(docs, store, extractor, recorder, broadcaster)
	worker := service.NewPipelineWorker(pipeline, docs, broadcaster, queueSize)

	return &harness{
		svc:         service.NewDocumentService(docs, audits, store, extractor, pipeline, worker, recorder, broadcaster, cfg),
		worker:      worker,
		pipeline:    pipeline,
		recorder:    recorder,
		store:       store,
		docs:        docs,
		audits:      audits,
		broadcaster: broadcaster,
		extractor:   extractor,
	}
}

// runWorker starts the worker and returns a func that stops it and waits.
func (h *harness) runWorker() func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker.Start(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *harness) waitTerminal(t *testing.T, id uuid.UUID) *domain.Document {
	t.Helper()
	var doc *domain.Document
	require.Eventually(t, func() bool {
		d, err := h.docs.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		doc = d
		return d.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return doc
}

func syncConfig() service.DocumentConfig {
	return service.DocumentConfig{MaxFileSize: 1 << 20, MaxFiles: 3, SyncMaxBytes: 1 << 20}
}

func backgroundConfig() service.DocumentConfig {
	return service.DocumentConfig{MaxFileSize: 1 << 20, MaxFiles: 3, SyncMaxBytes: 1}
}

func pdfFile(name string) service.UploadFile {
	body := []byte("%PDF-1.4 test body")
	return service.UploadFile{Name: name, Size: int64(len(body)), Body: bytes.NewReader(body)}
}

func certificateExtraction() *domain.Extraction {
	lines := []string{"Certificate of Completion", "Issued by: Go Academy", "Awarded to Jane Doe", "12.03.2024"}
	page := domain.Page{PageNumber: 1, Width: 612, Height: 792}
	for i, l := range lines {
		h := 12.0
		if i == 0 {
			h = 28
		}
		page.Items = append(page.Items, domain.TextItem{
			Str:  l,
			BBox: domain.BBox{X: 72, Y: 100 + float64(i)*40, W: 300, H: h},
		})
	}
	return &domain.Extraction{Pages: []domain.Page{page}, PlainText: strings.Join(lines, "\n") + domain.PageBreak}
}

func TestUpload_SmallPDFProcessedInline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("My Cert.pdf")}, Uploader: "jane"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, domain.StatusDone, doc.Status)
	assert.Equal(t, "My_Cert.pdf", doc.FileName)
	assert.Equal(t, "application/pdf", doc.ContentType)
	require.NotNil(t, doc.Mapping)
	assert.Equal(t, "Certificate of Completion", doc.Mapping.Title.Value)
	assert.Equal(t, "2024-03-12", doc.Mapping.IssuedDate.Value)
	assert.NotNil(t, doc.ProcessingFinishedAt)

	entries, err := h.svc.GetAudit(ctx, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditMethodHeuristic, entries[0].Method)
	assert.Empty(t, entries[0].Error)
	assert.NotNil(t, entries[0].Extraction)
	assert.Contains(t, entries[0].Preview, `"title":"Certificate of Completion"`)
}

func TestUpload_AcceptBeforeWorkerRunsSkipsJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("big.pdf")}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	id := docs[0].ID
	assert.Equal(t, domain.StatusQueued, docs[0].Status)

	events, cancel, err := h.svc.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel()

	userMapping := &domain.Mapping{Title: &domain.Field{Value: " Title: User Title ", Confidence: 1}}
	accepted, err := h.svc.Accept(ctx, id, userMapping, "jane")
	require.NoError(t, err)
	assert.True(t, accepted.MappingAccepted)
	assert.Equal(t, domain.StatusQueued, accepted.Status)

	stop := h.runWorker()
	doc := h.waitTerminal(t, id)
	stop()

	assert.Equal(t, domain.StatusSkipped, doc.Status)
	require.NotNil(t, doc.Mapping)
	assert.Equal(t, "User Title", doc.Mapping.Title.Value)
	assert.Nil(t, doc.Mapping.IssuedDate)
	assert.NotNil(t, doc.Extraction)

	entries, err := h.svc.GetAudit(ctx, id, 10)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Equal(t, domain.AuditMethodHeuristic, entries[0].Method)
	assert.Equal(t, "skipped: mappingAccepted", entries[0].Error)
	assert.Equal(t, domain.AuditMethodUserAccept, entries[1].Method)
	assert.Equal(t, "jane", entries[1].AcceptedBy)

	var last domain.StatusEvent
	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			last = ev
		default:
		}
		return last.Status == domain.StatusSkipped
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.SkipReasonMappingAccepted, last.Reason)
}

func TestUpload_ExtractionFailureRecordsError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("extractor.Extract: %w", domain.ErrTimeout))

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("slow.pdf")}})
	require.NoError(t, err)
	doc := docs[0]
	assert.Equal(t, domain.StatusError, doc.Status)
	assert.Contains(t, doc.ProcessingError, "timed out")

	_, err = h.svc.GetMapping(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrProcessingFailed)

	entries, err := h.svc.GetAudit(ctx, doc.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "timed out")
	assert.Nil(t, entries[0].Mapping)
}

func TestWorker_PanicIsAuditedAndPublished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("corrupt xref")
	}).Return(nil, nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("bad.pdf")}})
	require.NoError(t, err)
	id := docs[0].ID

	events, cancel, err := h.svc.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel()

	stop := h.runWorker()
	doc := h.waitTerminal(t, id)
	stop()

	assert.Equal(t, domain.StatusError, doc.Status)
	assert.Equal(t, "internal error: corrupt xref", doc.ProcessingError)

	entries, err := h.svc.GetAudit(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "internal error: corrupt xref", entries[0].Error)

	var last domain.StatusEvent
	require.Eventually(t, func() bool {
		select {
		case ev := <-events:
			last = ev
		default:
		}
		return last.Status == domain.StatusError
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "internal error: corrupt xref", last.Error)
}

func TestUpload_LargePDFProcessedByWorker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf"), pdfFile("b.pdf")}})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	_, err = h.svc.GetMapping(ctx, docs[0].ID)
	assert.ErrorIs(t, err, domain.ErrProcessingInProgress)

	stop := h.runWorker()
	for _, d := range docs {
		assert.Equal(t, domain.StatusDone, h.waitTerminal(t, d.ID).Status)
	}
	stop()

	m, err := h.svc.GetMapping(ctx, docs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Certificate of Completion", m.Title.Value)
}

func TestUpload_QueueFullLeavesDocumentReady(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 1)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf"), pdfFile("b.pdf")}})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, domain.StatusQueued, docs[0].Status)
	assert.Equal(t, domain.StatusReady, docs[1].Status)
	assert.Equal(t, 1, h.worker.Pending())

	assert.ErrorIs(t, h.worker.Enqueue(ctx, docs[1].ID), domain.ErrQueueFull)
}

func TestUpload_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig(), 4)

	_, err := h.svc.Upload(ctx, &service.UploadInput{})
	assert.ErrorIs(t, err, domain.ErrInputNotFound)

	_, err = h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf"), pdfFile("b.pdf"), pdfFile("c.pdf"), pdfFile("d.pdf")}})
	assert.ErrorIs(t, err, domain.ErrTooManyFiles)

	_, err = h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{{Name: "notes.txt", Size: 3, Body: strings.NewReader("abc")}}})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)

	_, err = h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{{Name: "huge.pdf", Size: 2 << 20, Body: strings.NewReader("x")}}})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	docs, _, err := h.svc.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUpload_ImageStaysReady(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig(), 4)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{{Name: "badge.PNG", Size: 4, Body: strings.NewReader("\x89PNG")}}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.StatusReady, docs[0].Status)
	assert.Equal(t, "image/png", docs[0].ContentType)

	_, err = h.svc.Extract(ctx, docs[0].ID)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFileType)
	_, err = h.svc.GetExtraction(ctx, docs[0].ID)
	assert.ErrorIs(t, err, domain.ErrExtractionNotFound)
	_, err = h.svc.GetMapping(ctx, docs[0].ID)
	assert.ErrorIs(t, err, domain.ErrMappingNotFound)

	file, err := h.svc.GetFile(ctx, docs[0].ID)
	require.NoError(t, err)
	assert.Empty(t, file.URL)
	assert.Equal(t, []byte("\x89PNG"), file.Data)

	h.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestAccept_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.NoError(t, err)
	id := docs[0].ID

	_, err = h.svc.Accept(ctx, uuid.New(), &domain.Mapping{Title: &domain.Field{Value: "x"}}, "")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = h.svc.Accept(ctx, id, &domain.Mapping{Title: &domain.Field{Value: "title: "}}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)

	_, err = h.svc.Accept(ctx, id, nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidMapping)

	_, err = h.svc.Accept(ctx, id, &domain.Mapping{Title: &domain.Field{Value: "First"}}, "a")
	require.NoError(t, err)

	_, err = h.svc.Accept(ctx, id, &domain.Mapping{Title: &domain.Field{Value: "Second"}}, "b")
	assert.ErrorIs(t, err, domain.ErrMappingAccepted)

	m, err := h.svc.GetMapping(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "First", m.Title.Value)

	entries, err := h.svc.GetAudit(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 1)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("queued.pdf"), pdfFile("ready.pdf")}})
	require.NoError(t, err)
	queued, ready := docs[0], docs[1]

	_, err = h.svc.Remap(ctx, queued.ID)
	assert.ErrorIs(t, err, domain.ErrProcessingInProgress)

	m, err := h.svc.Remap(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, "Certificate of Completion", m.Title.Value)

	again, err := h.svc.Remap(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Title.Value, again.Title.Value)
	assert.Equal(t, m.IssuedDate.Value, again.IssuedDate.Value)
	entries, err := h.svc.GetAudit(ctx, ready.ID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = h.svc.Accept(ctx, ready.ID, m, "jane")
	require.NoError(t, err)
	_, err = h.svc.Remap(ctx, ready.ID)
	assert.ErrorIs(t, err, domain.ErrMappingAccepted)

	_, err = h.svc.Remap(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestExtractAndGetExtraction(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 1)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.NoError(t, err)
	id := docs[0].ID

	_, err = h.svc.GetExtraction(ctx, id)
	assert.ErrorIs(t, err, domain.ErrProcessingInProgress)

	ext, err := h.svc.Extract(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ext.Pages, 1)

	cached, err := h.svc.GetExtraction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ext.PlainText, cached.PlainText)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.NoError(t, err)
	id := docs[0].ID
	_, err = h.svc.Accept(ctx, id, &domain.Mapping{Title: &domain.Field{Value: strings.Repeat("x", 300)}}, "jane")
	require.NoError(t, err)

	p, err := h.svc.Preview(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, p.Status)
	assert.True(t, p.MappingAccepted)
	assert.Equal(t, strings.Repeat("x", 200)+"...", p.Summary["title"])
	require.Len(t, p.Audits, 2)
	assert.Equal(t, domain.AuditMethodUserAccept, p.Audits[0].Method)
	for _, a := range p.Audits {
		assert.Nil(t, a.Extraction)
	}
}

func TestSubscribe_CurrentStatusFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, syncConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.NoError(t, err)

	events, cancel, err := h.svc.Subscribe(ctx, docs[0].ID)
	require.NoError(t, err)
	first := <-events
	assert.Equal(t, domain.StatusDone, first.Status)
	require.NotNil(t, first.Mapping)
	assert.Equal(t, 1, h.broadcaster.SubscriberCount(docs[0].ID))

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, h.broadcaster.SubscriberCount(docs[0].ID))

	_, _, err = h.svc.Subscribe(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

// racingRepo runs onGet once, right after GetByID has read the row, the way
// a pipeline finishing between that read and the subscription would.
type racingRepo struct {
	port.DocumentRepository
	onGet func(doc *domain.Document)
}

func (r *racingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := r.DocumentRepository.GetByID(ctx, id)
	if err == nil && r.onGet != nil {
		r.onGet(doc)
		r.onGet = nil
	}
	return doc, err
}

func TestSubscribe_StatusChangeDuringLoadIsDelivered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("slow.pdf")}})
	require.NoError(t, err)
	id := docs[0].ID
	require.Equal(t, domain.StatusQueued, docs[0].Status)

	repo := &racingRepo{DocumentRepository: h.docs, onGet: func(doc *domain.Document) {
		h.broadcaster.Publish(domain.StatusEvent{DocumentID: doc.ID, Status: domain.StatusDone})
	}}
	svc := service.NewDocumentService(repo, h.audits, h.store, h.extractor, h.pipeline, h.worker, h.recorder, h.broadcaster, backgroundConfig())

	events, cancel, err := svc.Subscribe(ctx, id)
	require.NoError(t, err)
	defer cancel()

	assert.Equal(t, domain.StatusQueued, (<-events).Status)
	select {
	case ev := <-events:
		assert.Equal(t, domain.StatusDone, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("status change published during subscribe was lost")
	}
}

func TestMapExtraction(t *testing.T) {
	h := newHarness(t, syncConfig(), 1)

	m := h.svc.MapExtraction(context.Background(), certificateExtraction())
	require.NotNil(t, m)
	assert.Equal(t, "Go Academy", m.Issuer.Value)
	assert.Equal(t, domain.DateFormatISO, m.IssuedDate.Format)

	assert.NotPanics(t, func() { h.svc.MapExtraction(context.Background(), nil) })
}

func TestGetAudit_ClampsLimit(t *testing.T) {
	ctx := context.Background()
	docRepo := new(mocks.MockDocumentRepo)
	auditRepo := new(mocks.MockAuditRepo)
	svc := service.NewDocumentService(docRepo, auditRepo, nil, nil, nil, nil, service.NewAuditRecorder(auditRepo), service.NewStatusBroadcaster(), syncConfig())

	id := uuid.New()
	docRepo.On("GetByID", ctx, id).Return(&domain.Document{ID: id}, nil)
	auditRepo.On("ListByDocument", ctx, id, 20).Return([]domain.AuditEntry{}, nil).Once()
	auditRepo.On("ListByDocument", ctx, id, 100).Return([]domain.AuditEntry{}, nil).Once()
	auditRepo.On("ListByDocument", ctx, id, 7).Return([]domain.AuditEntry{{DocumentID: id}}, nil).Once()

	_, err := svc.GetAudit(ctx, id, 0)
	require.NoError(t, err)
	_, err = svc.GetAudit(ctx, id, 500)
	require.NoError(t, err)
	entries, err := svc.GetAudit(ctx, id, 7)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	auditRepo.AssertExpectations(t)
}

func TestUpload_StorageFailure(t *testing.T) {
	ctx := context.Background()
	docRepo := new(mocks.MockDocumentRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewDocumentService(docRepo, nil, storage, nil, nil, nil, nil, service.NewStatusBroadcaster(), syncConfig())

	storage.On("Upload", ctx, mock.AnythingOfType("port.UploadInput")).Return(nil, fmt.Errorf("bucket unavailable"))

	docs, err := svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.Empty(t, docs)
	docRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUpload_CreateFailureRemovesStoredFile(t *testing.T) {
	ctx := context.Background()
	docRepo := new(mocks.MockDocumentRepo)
	storage := new(mocks.MockObjectStorage)
	svc := service.NewDocumentService(docRepo, nil, storage, nil, nil, nil, nil, service.NewStatusBroadcaster(), syncConfig())

	var key string
	storage.On("Upload", ctx, mock.AnythingOfType("port.UploadInput")).
		Run(func(args mock.Arguments) { key = args.Get(1).(port.UploadInput).Key }).
		Return(&port.UploadOutput{}, nil)
	docRepo.On("Create", ctx, mock.AnythingOfType("*domain.Document")).Return(fmt.Errorf("disk full"))
	storage.On("Delete", ctx, mock.AnythingOfType("string")).Return(nil)

	_, err := svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(key, "documents/"))
	storage.AssertCalled(t, "Delete", ctx, key)
}

func TestUpload_LargePDFHandedToQueue(t *testing.T) {
	ctx := context.Background()
	docRepo := new(mocks.MockDocumentRepo)
	storage := new(mocks.MockObjectStorage)
	queue := new(mocks.MockJobQueue)
	svc := service.NewDocumentService(docRepo, nil, storage, nil, nil, queue, nil, service.NewStatusBroadcaster(), backgroundConfig())

	var created *domain.Document
	storage.On("Upload", ctx, mock.AnythingOfType("port.UploadInput")).Return(&port.UploadOutput{}, nil)
	docRepo.On("Create", ctx, mock.AnythingOfType("*domain.Document")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.Document) }).
		Return(nil)
	queue.On("Enqueue", ctx, mock.AnythingOfType("uuid.UUID")).Return(domain.ErrQueueFull)
	docRepo.On("GetByID", ctx, mock.AnythingOfType("uuid.UUID")).Return(nil, domain.ErrDocumentNotFound)

	docs, err := svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NotNil(t, created)
	assert.Equal(t, created.ID, docs[0].ID)
	assert.Equal(t, domain.StatusReady, docs[0].Status)
	queue.AssertCalled(t, "Enqueue", ctx, created.ID)
}

func TestRequeueUnfinished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)
	h.extractor.On("Extract", mock.Anything, mock.Anything).Return(certificateExtraction(), nil)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{pdfFile("a.pdf")}})
	require.NoError(t, err)
	id := docs[0].ID
	require.NoError(t, h.docs.UpdateStatus(ctx, id, domain.StatusProcessing, ""))

	// A fresh worker over the same store stands in for a restarted process.
	restarted := service.NewPipelineWorker(
		service.NewPipeline(h.docs, nil, h.extractor, service.NewAuditRecorder(h.audits), h.broadcaster),
		h.docs, h.broadcaster, 4)
	n, err := restarted.RequeueUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, restarted.Pending())

	doc, err := h.docs.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, doc.Status)
}

func TestRequeueUnfinished_OverflowResetToReady(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, backgroundConfig(), 4)

	docs, err := h.svc.Upload(ctx, &service.UploadInput{Files: []service.UploadFile{
		pdfFile("a.pdf"), pdfFile("b.pdf"), pdfFile("c.pdf"),
	}})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.NoError(t, h.docs.UpdateStatus(ctx, docs[2].ID, domain.StatusProcessing, ""))

	restarted := service.NewPipelineWorker(h.pipeline, h.docs, h.broadcaster, 1)
	n, err := restarted.RequeueUnfinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, restarted.Pending())

	want := []domain.ProcessingStatus{domain.StatusQueued, domain.StatusReady, domain.StatusReady}
	for i, d := range docs {
		doc, err := h.docs.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, want[i], doc.Status, d.FileName)
	}

	left, err := h.docs.ListByStatus(ctx, []domain.ProcessingStatus{domain.StatusQueued, domain.StatusProcessing}, 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
