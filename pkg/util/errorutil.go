package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the conversation engine.
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	CodeLogUnavailable       = "LOG_UNAVAILABLE"
	CodeUploadFailed         = "UPLOAD_FAILED"
	CodeCommitFailed         = "COMMIT_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewFileTooLarge rejects an attachment before any bytes are transferred.
func NewFileTooLarge(sizeBytes, maxBytes int64) error {
	return NewDomainError(CodeFileTooLarge, "attachment exceeds size limit", http.StatusRequestEntityTooLarge, map[string]any{
		"size_bytes": sizeBytes,
		"max_bytes":  maxBytes,
	})
}

func NewDirectoryUnavailable(err error) error {
	return &DomainError{
		Code:       CodeDirectoryUnavailable,
		Message:    "ticket directory subscription failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewLogUnavailable(err error) error {
	return &DomainError{
		Code:       CodeLogUnavailable,
		Message:    "message log subscription failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUploadFailed(err error) error {
	return &DomainError{
		Code:       CodeUploadFailed,
		Message:    "attachment upload failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewCommitFailed classifies a transaction that did not apply. The writeSet is
// guaranteed not to be visible to any subscriber.
func NewCommitFailed(err error) error {
	return &DomainError{
		Code:       CodeCommitFailed,
		Message:    "transactional write did not apply",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
