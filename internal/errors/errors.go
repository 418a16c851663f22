package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a citelens error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound    ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrCaptureTooLarge ErrorCode = "CAPTURE_TOO_LARGE" // 413
	ErrInternal        ErrorCode = "INTERNAL"          // 500
)

// CiteError represents a structured error with code, status, and details.
// Only the outer layers return it; the ingestion engine reports problems as
// warnings instead.
type CiteError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *CiteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CiteError {
	return &CiteError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when an interaction cannot be found.
func NewNotFound(id string) *CiteError {
	return &CiteError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("interaction not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewFileNotFound creates a 404 error for a missing capture log file.
func NewFileNotFound(path string) *CiteError {
	return &CiteError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCaptureTooLarge creates a 413 error when a capture log exceeds the size limit.
func NewCaptureTooLarge(max, actual int64) *CiteError {
	return &CiteError{
		Code:    ErrCaptureTooLarge,
		Status:  413,
		Message: fmt.Sprintf("capture log exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CiteError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CiteError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a CiteError with the given code.
func Is(err error, code ErrorCode) bool {
	var cErr *CiteError
	if stderrors.As(err, &cErr) {
		return cErr.Code == code
	}
	return false
}
