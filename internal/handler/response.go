package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"certmap/internal/domain"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found"
	case errors.Is(err, domain.ErrExtractionNotFound):
		return http.StatusNotFound, "EXTRACTION_NOT_FOUND", "no extraction available for this document"
	case errors.Is(err, domain.ErrMappingNotFound):
		return http.StatusNotFound, "MAPPING_NOT_FOUND", "no mapping available for this document"
	case errors.Is(err, domain.ErrInputNotFound):
		return http.StatusBadRequest, "MISSING_FILE", "input document not found or unreadable"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported file type; allowed: pdf, jpg, png"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrTooManyFiles):
		return http.StatusBadRequest, "TOO_MANY_FILES", "too many files in one upload"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusInternalServerError, "UPLOAD_FAILED", "file upload to storage failed"
	case errors.Is(err, domain.ErrParseFailure):
		return http.StatusUnprocessableEntity, "PARSE_FAILURE", "document could not be parsed as PDF"
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "EXTRACTION_TIMEOUT", "extraction timed out"
	case errors.Is(err, domain.ErrMappingAccepted):
		return http.StatusConflict, "MAPPING_ACCEPTED", "mapping was already accepted"
	case errors.Is(err, domain.ErrProcessingInProgress):
		return http.StatusAccepted, "PROCESSING", "document is still being processed"
	case errors.Is(err, domain.ErrProcessingFailed):
		return http.StatusInternalServerError, "PROCESSING_ERROR", err.Error()
	case errors.Is(err, domain.ErrInvalidMapping):
		return http.StatusBadRequest, "INVALID_MAPPING", "mapping is empty or invalid"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "QUEUE_FULL", "processing queue is full; retry later"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// retryAfterSeconds is sent with errors a client may retry as is.
const retryAfterSeconds = "5"

// HandleError maps a domain error and sends the appropriate error response.
// In-progress work is not a failure and is answered with 202.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status == http.StatusAccepted {
		c.JSON(status, APIResponse{Success: true, Data: gin.H{"status": "processing", "message": msg}})
		return
	}
	if domain.IsRetryable(err) {
		c.Header("Retry-After", retryAfterSeconds)
	}
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Printf("[%s] internal error: %v", requestID, err)
	}
	RespondError(c, status, code, msg)
}

// parseID reads the :id path parameter. Returns false if it is not a UUID
// (error response already written).
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid document ID")
		return uuid.Nil, false
	}
	return id, true
}

// parsePagination reads offset/limit query params with the usual defaults.
func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
