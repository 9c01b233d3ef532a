package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed failure that knows how it should surface over HTTP.
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

// Is matches errors by code so that clones and wrapped copies of a
// predefined error still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// WrapAs wraps err using the code, status and message of a predefined error.
func WrapAs(err error, kind *Error) *Error {
	return Wrap(err, kind.Code, kind.Status, kind.Message)
}

// Generic errors.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrQueueFull          = New("QUEUE_FULL", http.StatusServiceUnavailable, "job queue is full")
)

// Archive and submission errors. Messages match the public create-archive contract.
var (
	ErrInvalidRequest      = New("INVALID_REQUEST", http.StatusBadRequest, "Missing submissionId")
	ErrSubmissionNotFound  = New("SUBMISSION_NOT_FOUND", http.StatusNotFound, "Submission not found")
	ErrNoFilesFound        = New("NO_FILES_FOUND", http.StatusNotFound, "No files found")
	ErrArchiveEmpty        = New("ARCHIVE_EMPTY", http.StatusBadGateway, "All file downloads failed")
	ErrArchiveBuild        = New("ARCHIVE_BUILD_FAILED", http.StatusInternalServerError, "Failed to create archive")
	ErrStorageWrite        = New("STORAGE_WRITE_FAILED", http.StatusInternalServerError, "Failed to upload archive")
	ErrStorageRead         = New("STORAGE_READ_FAILED", http.StatusInternalServerError, "Failed to list files")
	ErrMissingFields       = New("MISSING_FIELDS", http.StatusBadRequest, "Missing required fields")
	ErrNoFilesProvided     = New("NO_FILES_PROVIDED", http.StatusBadRequest, "No files provided")
	ErrNotificationFailed  = New("NOTIFICATION_FAILED", http.StatusBadGateway, "Failed to send email")
	ErrGeocodeUnavailable  = New("GEOCODE_UNAVAILABLE", http.StatusBadGateway, "Reverse geocoding unavailable")
	ErrDownloadLinkExpired = New("DOWNLOAD_LINK_EXPIRED", http.StatusGone, "download link expired")
)

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
