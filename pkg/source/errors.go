package source

import (
	"errors"
	"fmt"
)

// Sentinel errors for input sources.
var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAccessDenied indicates insufficient permissions to read the document.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates storage authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrThrottled indicates the storage backend rate limited the read.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the storage backend is unavailable.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrUnsupportedType indicates a document type the API does not accept.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrInvalidSource indicates a malformed source (empty name, bad URL, bad base64).
	ErrInvalidSource = errors.New("invalid source")
)

// SourceError wraps a failure to open a document with context.
type SourceError struct {
	// Op is the operation that failed (e.g., "Open", "Glob").
	Op string

	// Source describes the input (path, URL or s3://bucket/key).
	Source string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("source %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("source %s: %s: %v", e.Op, e.Source, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the document could not be read for lack of permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsUnsupportedType returns true if the document type is not accepted by the API.
func IsUnsupportedType(err error) bool {
	return errors.Is(err, ErrUnsupportedType)
}
