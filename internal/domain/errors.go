package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so a sentinel matches the same error after WithCause attached a cause.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithCause returns a copy of the error carrying err as its cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeAlreadyExists         = "ALREADY_EXISTS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeEmbeddingUnavailable  = "EMBEDDING_UNAVAILABLE"
	ErrCodeGenerationUnavailable = "GENERATION_UNAVAILABLE"
)

// CodeOf returns the code of the first DomainError in err's chain, or an
// empty string when there is none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the failed operation as is.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeEmbeddingUnavailable, ErrCodeGenerationUnavailable:
		return true
	}
	return false
}

// Validation errors
var (
	ErrInvalidInput              = NewDomainError(ErrCodeInvalidInput, "invalid input")
	ErrEmptyQuestion             = NewDomainError(ErrCodeInvalidInput, "question must not be empty")
	ErrInvalidKnowledgeType      = NewDomainError(ErrCodeInvalidInput, "invalid knowledge type")
	ErrInvalidImportPayload      = NewDomainError(ErrCodeInvalidInput, "invalid import payload")
	ErrInvalidEmbeddingJobStatus = NewDomainError(ErrCodeInvalidInput, "invalid embedding job status")
	ErrMissingRequiredField      = NewDomainError(ErrCodeInvalidInput, "missing required field")
)

// Not found errors
var (
	ErrKnowledgeNotFound    = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrAnswerNotFound       = NewDomainError(ErrCodeNotFound, "answer not found")
	ErrOrganizationNotFound = NewDomainError(ErrCodeNotFound, "organization not found")
	ErrAPIKeyNotFound       = NewDomainError(ErrCodeNotFound, "api key not found")
)

// Already exists errors
var (
	ErrOrganizationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "organization already exists")
	ErrAPIKeyAlreadyExists       = NewDomainError(ErrCodeAlreadyExists, "api key already exists")
)

// Authorization errors
var (
	ErrAPIKeyRevoked = NewDomainError(ErrCodeUnauthorized, "api key has been revoked")
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
	ErrAdminRequired = NewDomainError(ErrCodeForbidden, "admin api key required")
)

// External service errors
var (
	ErrEmbeddingUnavailable  = NewDomainError(ErrCodeEmbeddingUnavailable, "embedding service unavailable")
	ErrGenerationUnavailable = NewDomainError(ErrCodeGenerationUnavailable, "generation service unavailable")
	ErrStorageOperationFail  = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
