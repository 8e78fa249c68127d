package handler

import (
	"certmap/internal/domain"
)

// Swagger type definitions for API documentation.
// These types are used by swag to generate OpenAPI documentation.

// --- Request Types ---

// AcceptMappingRequest represents the accept mapping request body.
type AcceptMappingRequest struct {
	Mapping *domain.Mapping `json:"mapping" binding:"required"`
	User    string          `json:"user" example:"jane@example.com"`
}

// MapRequest represents the map request body. Exactly one of ID and
// Extraction is expected; ID wins when both are set.
type MapRequest struct {
	ID         string             `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Extraction *domain.Extraction `json:"extraction"`
}

// --- Response Types ---

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string `json:"status" example:"ok"`
	Error        string `json:"error,omitempty" example:"database not reachable"`
	QueuePending int    `json:"queue_pending,omitempty" example:"3"`
}

// DownloadURLResponse represents a presigned download URL.
type DownloadURLResponse struct {
	URL string `json:"url" example:"https://bucket.s3.amazonaws.com/documents/550e8400/cert.pdf?X-Amz-Signature=..."`
}

// ProcessingResponse is returned with 202 while a document is queued or processing.
type ProcessingResponse struct {
	Status  string `json:"status" example:"processing"`
	Message string `json:"message" example:"document is still being processed"`
}

// --- Generic Response Wrappers ---

// Response wraps a successful response with data.
type Response struct {
	Success bool        `json:"success" example:"true"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// ErrorResponseBody wraps an error response.
type ErrorResponseBody struct {
	Success bool      `json:"success" example:"false"`
	Error   *APIError `json:"error"`
}
