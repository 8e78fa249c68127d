package handler

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"certmap/internal/csvexport"
	"certmap/internal/middleware"
	"certmap/internal/service"
)

// exportBatchSize is how many documents Export reads per page.
const exportBatchSize = 100

// DocumentHandler handles upload and document endpoints.
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload handles POST /api/v1/uploads
// @Summary Upload certificates
// @Description Upload up to 10 files (PDF, JPG, PNG). Small PDFs are mapped before the response, larger ones are queued.
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files to upload"
// @Param uploader formData string false "Uploader name"
// @Param ctx formData string false "Free-form upload context"
// @Success 201 {object} Response{data=[]domain.Document} "Documents created"
// @Failure 400 {object} ErrorResponseBody "Missing files, too many files or unsupported type"
// @Failure 413 {object} ErrorResponseBody "File too large"
// @Failure 429 {object} ErrorResponseBody "Rate limited"
// @Failure 500 {object} ErrorResponseBody "Upload failed"
// @Security BearerAuth
// @Router /uploads [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "multipart form with a files field is required")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "files field is required")
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			log.Printf("documentHandler.Upload: open %s: %v", fh.Filename, err)
			RespondError(c, http.StatusBadRequest, "MISSING_FILE", fmt.Sprintf("could not read %s", fh.Filename))
			return
		}
		opened = append(opened, f)
		files = append(files, service.UploadFile{Name: fh.Filename, Size: fh.Size, Body: f})
	}

	uploader := c.PostForm("uploader")
	if uploader == "" {
		uploader = middleware.GetSubject(c)
	}

	docs, err := h.documentService.Upload(c.Request.Context(), &service.UploadInput{
		Files:    files,
		Uploader: uploader,
		Context:  c.PostForm("ctx"),
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, docs)
}

// List handles GET /api/v1/uploads
// @Summary List documents
// @Description List uploaded documents, newest first
// @Tags uploads
// @Produce json
// @Param offset query int false "Offset for pagination" default(0)
// @Param limit query int false "Limit for pagination (max 100)" default(20)
// @Success 200 {object} Response{data=[]domain.Document,meta=PagMeta} "List of documents"
// @Security BearerAuth
// @Router /uploads [get]
func (h *DocumentHandler) List(c *gin.Context) {
	offset, limit := parsePagination(c)

	docs, total, err := h.documentService.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, docs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/uploads/:id
// @Summary Get a document
// @Tags uploads
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} Response{data=domain.Document} "Document"
// @Failure 400 {object} ErrorResponseBody "Invalid ID"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /uploads/{id} [get]
func (h *DocumentHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}

// Download handles GET /api/v1/uploads/:id/download
// @Summary Download the uploaded file
// @Description Returns a storage URL when the backend can presign one, otherwise the file bytes
// @Tags uploads
// @Produce json,application/pdf
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} Response{data=DownloadURLResponse} "Download URL"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /uploads/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	file, err := h.documentService.GetFile(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	if file.URL != "" {
		RespondOK(c, DownloadURLResponse{URL: file.URL})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, file.Document.FileName))
	c.Data(http.StatusOK, file.Document.ContentType, file.Data)
}

// Export handles GET /api/v1/uploads/export
// @Summary Export documents as CSV
// @Description Streams every document with its current mapping, newest first
// @Tags uploads
// @Produce text/csv
// @Success 200 {file} file "CSV file"
// @Security BearerAuth
// @Router /uploads/export [get]
func (h *DocumentHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	// Fetch the first page before committing to a 200.
	docs, total, err := h.documentService.List(ctx, 0, exportBatchSize)
	if err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Type", csvexport.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, csvexport.BuildFilename(time.Now())))
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write(csvexport.BOM)

	w := csvexport.NewWriter(c.Writer)
	if err := w.WriteHeader(); err != nil {
		log.Printf("documentHandler.Export: writing header: %v", err)
		return
	}

	offset := 0
	for len(docs) > 0 {
		if err := w.WriteDocuments(docs); err != nil {
			log.Printf("documentHandler.Export: writing rows at offset %d: %v", offset, err)
			return
		}
		offset += len(docs)
		if offset >= total {
			break
		}
		docs, _, err = h.documentService.List(ctx, offset, exportBatchSize)
		if err != nil {
			log.Printf("documentHandler.Export: listing at offset %d: %v", offset, err)
			break
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Printf("documentHandler.Export: flushing: %v", err)
	}
}
