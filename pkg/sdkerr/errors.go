// Package sdkerr defines the error taxonomy shared by every goextract package.
//
// Each failure kind has a sentinel (for errors.Is) and a typed error carrying
// context (for errors.As). Callers of the orchestration client see exactly one
// of these kinds, never a partially-populated result.
package sdkerr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for goextract operations.
var (
	// ErrConfiguration indicates invalid or missing credentials or options.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport indicates a network-level failure.
	ErrTransport = errors.New("transport error")

	// ErrAPI indicates the server responded but flagged a failure.
	ErrAPI = errors.New("api error")

	// ErrDeserialization indicates a payload did not match any recognized shape.
	ErrDeserialization = errors.New("deserialization error")

	// ErrPollingTimeout indicates the retry budget ran out while the job was still processing.
	ErrPollingTimeout = errors.New("polling timeout")

	// ErrCancelled indicates the caller cancelled a polling loop. The job is
	// left in a resumable state.
	ErrCancelled = errors.New("polling cancelled")
)

// ConfigurationError is raised synchronously at construction time and never retried.
type ConfigurationError struct {
	// Field names the offending option (e.g., "APIKey", "MaxRetries").
	Field string

	// Message describes what is wrong with it.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Message
	}
	return "configuration: " + e.Field + ": " + e.Message
}

// Unwrap returns ErrConfiguration for errors.Is support.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// TransportError wraps a network failure (DNS, connection reset, TLS).
type TransportError struct {
	// Op is the operation that failed (e.g., "Enqueue", "Poll").
	Op string

	// URL is the request target.
	URL string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport %s: %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports ErrTransport membership.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ErrorItem is one entry of an API error's sub-error list.
type ErrorItem struct {
	Pointer string `json:"pointer,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse is the server's structured error payload, embedded in jobs
// and returned as the body of failed requests.
type ErrorResponse struct {
	Status int         `json:"status"`
	Detail string      `json:"detail,omitempty"`
	Title  string      `json:"title,omitempty"`
	Code   string      `json:"code,omitempty"`
	Errors []ErrorItem `json:"errors,omitempty"`
}

// IsEmpty reports whether the payload carries no information.
func (r *ErrorResponse) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.Status == 0 && r.Detail == "" && r.Title == "" && r.Code == "" && len(r.Errors) == 0
}

// APIError is a server-flagged failure. It is never retried.
type APIError struct {
	ErrorResponse

	// Op is the client operation that observed the failure.
	Op string
}

// NewAPIError builds an APIError from an error payload.
func NewAPIError(op string, payload ErrorResponse) *APIError {
	return &APIError{ErrorResponse: payload, Op: op}
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("api")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	fmt.Fprintf(&b, ": HTTP %d", e.Status)
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Title != "" {
		b.WriteString(" - ")
		b.WriteString(e.Title)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns ErrAPI for errors.Is support.
func (e *APIError) Unwrap() error {
	return ErrAPI
}

// DeserializationError indicates a payload shape mismatch. It is always fatal
// to the parse; no fallback value is substituted.
type DeserializationError struct {
	// Message describes the mismatch.
	Message string

	// Path locates the offending node (e.g., "fields.line_items.items[2]").
	Path string

	// Node is a truncated JSON rendering of the offending node, if available.
	Node string

	// Err is an optional underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DeserializationError) Error() string {
	msg := "deserialize"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Message
	if e.Node != "" {
		msg += ": " + e.Node
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause when present.
func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// Is reports ErrDeserialization membership.
func (e *DeserializationError) Is(target error) bool {
	return target == ErrDeserialization
}

// PollingTimeoutError indicates the job was still processing when the retry
// budget was exhausted. The job may be resumed later.
type PollingTimeoutError struct {
	JobID    string
	Attempts int
	MaxWait  time.Duration
}

// Error implements the error interface.
func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("job %s still processing after %d attempts (max wait %s)", e.JobID, e.Attempts, e.MaxWait)
}

// Unwrap returns ErrPollingTimeout for errors.Is support.
func (e *PollingTimeoutError) Unwrap() error {
	return ErrPollingTimeout
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTransport returns true if the error is a network-level failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsAPI returns true if the server flagged the request as failed.
func IsAPI(err error) bool {
	return errors.Is(err, ErrAPI)
}

// IsDeserialization returns true if a payload could not be parsed.
func IsDeserialization(err error) bool {
	return errors.Is(err, ErrDeserialization)
}

// IsPollingTimeout returns true if polling gave up on a non-terminal job.
func IsPollingTimeout(err error) bool {
	return errors.Is(err, ErrPollingTimeout)
}

// IsCancelled returns true if the caller cancelled polling.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
