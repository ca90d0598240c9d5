package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the entry workflow.
var (
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrSchema            = New("SCHEMA_ERROR", http.StatusUnprocessableEntity, "roster is missing required columns")
	ErrUnreadableUpload  = New("UNREADABLE_UPLOAD", http.StatusBadRequest, "uploaded file could not be read")
	ErrPayloadTooLarge   = New("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, "uploaded file is too large")
	ErrRosterRequired    = New("ROSTER_REQUIRED", http.StatusPreconditionFailed, "upload a roster first")
	ErrSessionComplete   = New("SESSION_COMPLETE", http.StatusConflict, "all employees have been entered")
	ErrSessionIncomplete = New("SESSION_INCOMPLETE", http.StatusConflict, "entry is not complete")
	ErrSnapshotNotFound  = New("SNAPSHOT_NOT_FOUND", http.StatusNotFound, "no saved session")
	ErrLinkExpired       = New("LINK_EXPIRED", http.StatusGone, "download link expired")
	ErrPersistence       = New("PERSISTENCE_ERROR", http.StatusInternalServerError, "session backup failed")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == target.Code
	}
	return false
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
