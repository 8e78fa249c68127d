package domain

import "errors"

var (
	ErrInputNotFound        = errors.New("input document not found or unreadable")
	ErrUnsupportedFileType  = errors.New("unsupported file type")
	ErrFileTooLarge         = errors.New("file exceeds maximum allowed size")
	ErrTooManyFiles         = errors.New("too many files in one upload")
	ErrUploadFailed         = errors.New("file upload to storage failed")
	ErrParseFailure         = errors.New("document could not be parsed as PDF")
	ErrTimeout              = errors.New("extraction timed out")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrExtractionNotFound   = errors.New("extraction not available")
	ErrMappingNotFound      = errors.New("mapping not available")
	ErrMappingAccepted      = errors.New("mapping was accepted and is frozen")
	ErrProcessingInProgress = errors.New("document is still being processed")
	ErrProcessingFailed     = errors.New("document processing failed")
	ErrInvalidMapping       = errors.New("mapping is empty or invalid")
	ErrQueueFull            = errors.New("processing queue is full")
	ErrUnauthorized         = errors.New("unauthorized")
)

// IsInputError reports whether err means the source itself was missing or of the wrong kind.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInputNotFound) ||
		errors.Is(err, ErrUnsupportedFileType) ||
		errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrTooManyFiles)
}

// IsRetryable reports whether a later attempt might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrQueueFull)
}
