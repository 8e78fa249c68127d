package handler

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"certmap/internal/auditexport"
	"certmap/internal/middleware"
	"certmap/internal/service"
)

// exportAuditLimit is how many audit entries an XLSX export includes.
const exportAuditLimit = 100

// MappingHandler handles extraction, mapping and audit endpoints.
type MappingHandler struct {
	documentService service.DocumentService
}

// NewMappingHandler creates a new MappingHandler.
func NewMappingHandler(documentService service.DocumentService) *MappingHandler {
	return &MappingHandler{documentService: documentService}
}

// Extract handles POST /api/v1/extract/:id
// @Summary Re-extract a document
// @Description Runs layout extraction again and stores the result. Does not change the mapping.
// @Tags extraction
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} Response{data=domain.Extraction} "Extraction"
// @Failure 400 {object} ErrorResponseBody "Not a PDF"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Failure 422 {object} ErrorResponseBody "Not parseable as PDF"
// @Failure 504 {object} ErrorResponseBody "Extraction timed out"
// @Security BearerAuth
// @Router /extract/{id} [post]
func (h *MappingHandler) Extract(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ext, err := h.documentService.Extract(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, ext)
}

// GetExtraction handles GET /api/v1/extraction/:id
// @Summary Get the cached extraction
// @Tags extraction
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} Response{data=domain.Extraction} "Extraction"
// @Success 202 {object} Response{data=ProcessingResponse} "Still processing"
// @Failure 404 {object} ErrorResponseBody "Document or extraction not found"
// @Security BearerAuth
// @Router /extraction/{id} [get]
func (h *MappingHandler) GetExtraction(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	ext, err := h.documentService.GetExtraction(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, ext)
}

// GetMapping handles GET /api/v1/mapping/:id
// @Summary Get the suggested mapping
// @Description Returns the accepted mapping if there is one, otherwise the latest heuristic mapping
// @Tags mapping
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} Response{data=domain.Mapping} "Mapping"
// @Success 202 {object} Response{data=ProcessingResponse} "Still processing"
// @Failure 404 {object} ErrorResponseBody "Document or mapping not found"
// @Failure 500 {object} ErrorResponseBody "Processing failed"
// @Security BearerAuth
// @Router /mapping/{id} [get]
func (h *MappingHandler) GetMapping(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	mapping, err := h.documentService.GetMapping(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, mapping)
}

// Preview handles GET /api/v1/mapping/:id/preview
// @Summary Preview a document's mapping state
// @Description Status, a truncated summary of the mapping and the five most recent audit entries
// @Tags mapping
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} Response{data=service.MappingPreview} "Preview"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /mapping/{id}/preview [get]
func (h *MappingHandler) Preview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	preview, err := h.documentService.Preview(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, preview)
}

// Accept handles POST /api/v1/mapping/:id/accept
// @Summary Accept a mapping
// @Description Freezes the given mapping. Later background runs for the document are skipped.
// @Tags mapping
// @Accept json
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Param request body AcceptMappingRequest true "Mapping to accept"
// @Success 200 {object} Response{data=domain.Document} "Document with accepted mapping"
// @Failure 400 {object} ErrorResponseBody "Invalid mapping"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Failure 409 {object} ErrorResponseBody "Already accepted"
// @Security BearerAuth
// @Router /mapping/{id}/accept [post]
func (h *MappingHandler) Accept(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req AcceptMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Mapping == nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "mapping is required")
		return
	}

	acceptedBy := middleware.GetSubject(c)
	if acceptedBy == "" {
		acceptedBy = req.User
	}

	doc, err := h.documentService.Accept(c.Request.Context(), id, req.Mapping, acceptedBy)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, doc)
}

// Audit handles GET /api/v1/mapping/:id/audit
// @Summary List audit entries
// @Tags mapping
// @Produce json
// @Param id path string true "Document ID (UUID)"
// @Param limit query int false "Max entries (max 100)" default(20)
// @Success 200 {object} Response{data=[]domain.AuditEntry} "Audit entries, newest first"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /mapping/{id}/audit [get]
func (h *MappingHandler) Audit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	entries, err := h.documentService.GetAudit(c.Request.Context(), id, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, entries)
}

// ExportAudit handles GET /api/v1/mapping/:id/audit/export
// @Summary Export the audit trail
// @Tags mapping
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Document ID (UUID)"
// @Success 200 {file} file "XLSX workbook"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /mapping/{id}/audit/export [get]
func (h *MappingHandler) ExportAudit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	doc, err := h.documentService.Get(ctx, id)
	if err != nil {
		HandleError(c, err)
		return
	}
	entries, err := h.documentService.GetAudit(ctx, id, exportAuditLimit)
	if err != nil {
		HandleError(c, err)
		return
	}

	w, err := auditexport.NewWriter()
	if err != nil {
		HandleError(c, err)
		return
	}
	defer func() { _ = w.Close() }()

	if err := w.WriteHeader(); err != nil {
		HandleError(c, err)
		return
	}
	if err := w.WriteEntries(entries); err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Type", auditexport.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, auditexport.BuildFilename(doc.FileName)))
	c.Status(http.StatusOK)
	if _, err := w.WriteTo(c.Writer); err != nil {
		log.Printf("mappingHandler.ExportAudit: writing workbook for %s: %v", id, err)
	}
}

// Map handles POST /api/v1/map
// @Summary Map a document or an extraction
// @Description With id, returns the cached mapping or runs the pipeline. With extraction, maps it without storing anything.
// @Tags mapping
// @Accept json
// @Produce json
// @Param request body MapRequest true "Document ID or inline extraction"
// @Success 200 {object} Response{data=domain.Mapping} "Mapping"
// @Success 202 {object} Response{data=ProcessingResponse} "Still processing"
// @Failure 400 {object} ErrorResponseBody "Neither id nor extraction given"
// @Failure 409 {object} ErrorResponseBody "Mapping already accepted"
// @Security BearerAuth
// @Router /map [post]
func (h *MappingHandler) Map(c *gin.Context) {
	var req MapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	switch {
	case req.ID != "":
		id, err := uuid.Parse(req.ID)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
			return
		}
		mapping, err := h.documentService.Remap(c.Request.Context(), id)
		if err != nil {
			HandleError(c, err)
			return
		}
		RespondOK(c, mapping)
	case req.Extraction != nil:
		RespondOK(c, h.documentService.MapExtraction(c.Request.Context(), req.Extraction))
	default:
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", "id or extraction is required")
	}
}
