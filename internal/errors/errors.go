package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

/**
 * Custom error types for the textread service
 *
 * Every failure that reaches an HTTP boundary is a *ProcessingError. The code
 * decides both the kind (input, upstream, internal) and the status code.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Input errors
	ErrorMissingImage         ErrorCode = "MISSING_IMAGE_SOURCE"
	ErrorInvalidUpload        ErrorCode = "INVALID_UPLOAD"
	ErrorFileTooLarge         ErrorCode = "FILE_TOO_LARGE"
	ErrorUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	ErrorBase64Rejected       ErrorCode = "BASE64_REJECTED"
	ErrorMethodNotAllowed     ErrorCode = "METHOD_NOT_ALLOWED"

	// Upstream errors
	ErrorOCRFailed      ErrorCode = "OCR_FAILED"
	ErrorNetworkTimeout ErrorCode = "NETWORK_TIMEOUT"

	// Internal errors
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"
)

// Kind groups error codes by who is at fault
type Kind string

const (
	KindInput    Kind = "input"
	KindUpstream Kind = "upstream"
	KindInternal Kind = "internal"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	RequestID string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Kind classifies the error code
func (e *ProcessingError) Kind() Kind {
	switch e.Code {
	case ErrorMissingImage, ErrorInvalidUpload, ErrorFileTooLarge,
		ErrorUnsupportedMediaType, ErrorBase64Rejected, ErrorMethodNotAllowed:
		return KindInput
	case ErrorOCRFailed, ErrorNetworkTimeout:
		return KindUpstream
	default:
		return KindInternal
	}
}

// HTTPStatus maps the error code to a response status
func (e *ProcessingError) HTTPStatus() int {
	switch e.Code {
	case ErrorMissingImage, ErrorInvalidUpload:
		return http.StatusBadRequest
	case ErrorMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorUnsupportedMediaType, ErrorBase64Rejected:
		return http.StatusUnsupportedMediaType
	case ErrorOCRFailed, ErrorNetworkTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to clients. Internal errors never
// leak their cause.
func (e *ProcessingError) PublicMessage() string {
	if e.Kind() == KindInternal {
		return "Internal server error."
	}
	return e.Message
}

// WithRequestID tags the error with the request that produced it
func (e *ProcessingError) WithRequestID(id string) *ProcessingError {
	e.RequestID = id
	return e
}

// As extracts a *ProcessingError from an error chain
func As(err error) (*ProcessingError, bool) {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Factory functions for common errors

func NewMissingImageError() *ProcessingError {
	return &ProcessingError{
		Code:      ErrorMissingImage,
		Message:   "Provide an image via multipart `image` or `image_url`.",
		Timestamp: time.Now(),
	}
}

func NewInvalidUploadError(cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidUpload,
		Message:   "Invalid upload.",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewFileTooLargeError(limit int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFileTooLarge,
		Message:   fmt.Sprintf("File too large. Max %dMB.", limit/(1024*1024)),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"max_bytes": limit,
		},
	}
}

func NewUnsupportedMediaTypeError(mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorUnsupportedMediaType,
		Message:   "Unsupported Media Type. Provide a valid image file.",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewBase64RejectedError() *ProcessingError {
	return &ProcessingError{
		Code:      ErrorBase64Rejected,
		Message:   "Base64 is not accepted. Upload the image as multipart with field name `image`.",
		Timestamp: time.Now(),
	}
}

func NewMethodNotAllowedError() *ProcessingError {
	return &ProcessingError{
		Code:      ErrorMethodNotAllowed,
		Message:   "Method Not Allowed. Use POST.",
		Timestamp: time.Now(),
	}
}

func NewOCRFailedError(provider string, message string) *ProcessingError {
	if message == "" {
		message = "OCR processing error"
	}
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   message,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_provider": provider,
		},
	}
}

func NewInternalError(cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInternal,
		Message:   "Server error",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(message string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDatabaseFailedError(operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDatabaseFailed,
		Message:   fmt.Sprintf("Database operation failed: %s", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for structured logging
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
		"kind":       string(e.Kind()),
	}

	if e.RequestID != "" {
		result["request_id"] = e.RequestID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
