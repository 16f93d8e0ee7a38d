package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobRunning indicates a job of the same kind is already running for the session.
	ErrJobRunning = errors.New("job already running")

	// ErrNoJob indicates no job of the requested kind is active for the session.
	ErrNoJob = errors.New("no active job")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the generation service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)

// ErrorCode is a stable, machine-readable identifier for a failure class.
// Codes never change once published; callers switch on them.
type ErrorCode string

// Error codes.
const (
	CodeServiceUnreachable       ErrorCode = "SERVICE_UNREACHABLE"
	CodeRequestTimeout           ErrorCode = "REQUEST_TIMEOUT"
	CodeModelNotFound            ErrorCode = "MODEL_NOT_FOUND"
	CodeInvalidEmbeddingPayload  ErrorCode = "INVALID_EMBEDDING_PAYLOAD"
	CodeNonLocalEndpointRejected ErrorCode = "NON_LOCAL_ENDPOINT_REJECTED"
	CodeIndexCancelled           ErrorCode = "INDEX_CANCELLED"
	CodeAskCancelled             ErrorCode = "ASK_CANCELLED"
	CodeSchemaValidationFailed   ErrorCode = "SCHEMA_VALIDATION_FAILED"
	CodeCitationFloorNotMet      ErrorCode = "CITATION_FLOOR_NOT_MET"
	CodeWorkerCrashed            ErrorCode = "WORKER_CRASHED"
	CodeInternal                 ErrorCode = "INTERNAL"
)

// Error is an error carrying a stable code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so sentinels below work
// with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a coded error wrapping err.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether err is a transient network failure.
// Configuration failures (unknown model, rejected endpoint) are not retryable.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeServiceUnreachable, CodeRequestTimeout:
		return true
	default:
		return false
	}
}

// Coded sentinels for use with errors.Is.
var (
	ErrServiceUnreachable       = NewError(CodeServiceUnreachable, "inference service unreachable")
	ErrRequestTimeout           = NewError(CodeRequestTimeout, "request timed out")
	ErrModelNotFound            = NewError(CodeModelNotFound, "model not found")
	ErrInvalidEmbeddingPayload  = NewError(CodeInvalidEmbeddingPayload, "invalid embedding payload")
	ErrNonLocalEndpointRejected = NewError(CodeNonLocalEndpointRejected, "non-local endpoint rejected")
	ErrIndexCancelled           = NewError(CodeIndexCancelled, "indexing cancelled")
	ErrAskCancelled             = NewError(CodeAskCancelled, "ask cancelled")
	ErrSchemaValidationFailed   = NewError(CodeSchemaValidationFailed, "answer failed schema validation")
	ErrCitationFloorNotMet      = NewError(CodeCitationFloorNotMet, "not enough verified citations")
	ErrWorkerCrashed            = NewError(CodeWorkerCrashed, "worker crashed")
)
