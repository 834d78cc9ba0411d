// Package output provides JSONL output for batch extraction runs.
//
// Output is structured as typed record envelopes containing inferences,
// errors, job snapshots and a closing summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/source"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: goextract.<type>.v<version>
const (
	// TypeInference identifies a completed inference.
	TypeInference = "goextract.inference.v1"

	// TypeJob identifies a job state snapshot.
	TypeJob = "goextract.job.v1"

	// TypeError identifies error records.
	TypeError = "goextract.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "goextract.summary.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "goextract.inference.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates every record of one batch run.
	RunID string `json:"run_id"`

	// Product is the product slug the run targets (e.g., "extraction").
	Product string `json:"product"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// InferenceRecord is the data payload for a completed document.
type InferenceRecord struct {
	// Source describes where the document came from (path, s3:// URI, URL).
	Source string `json:"source"`

	JobID       string `json:"job_id"`
	InferenceID string `json:"inference_id"`
	ModelID     string `json:"model_id,omitempty"`
	Filename    string `json:"filename,omitempty"`

	// Attempts is the number of polls the job needed.
	Attempts int `json:"attempts"`

	// Inference is the server's inference object, verbatim.
	Inference any `json:"inference"`
}

// JobRecord is the data payload for a job snapshot that did not reach a
// result (timed out or cancelled), so it can be resumed later.
type JobRecord struct {
	Source     string `json:"source"`
	JobID      string `json:"job_id"`
	State      string `json:"state"`
	Status     string `json:"status,omitempty"`
	Attempts   int    `json:"attempts"`
	PollingURL string `json:"polling_url,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire run,
// allowing partial results when some documents fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Source is the document related to this error, if applicable.
	Source string `json:"source,omitempty"`

	// JobID is set once the document was enqueued.
	JobID string `json:"job_id,omitempty"`

	// Status is the HTTP status for API errors.
	Status int `json:"status,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeConfiguration   = "CONFIGURATION"
	ErrCodeTransport       = "TRANSPORT"
	ErrCodeAPI             = "API"
	ErrCodeDeserialization = "DESERIALIZATION"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeSource          = "SOURCE"
	ErrCodeInternal        = "INTERNAL"
)

// ErrorCodeFor maps an error onto an ErrorRecord code.
func ErrorCodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case sdkerr.IsCancelled(err):
		return ErrCodeCancelled
	case sdkerr.IsPollingTimeout(err):
		return ErrCodeTimeout
	case sdkerr.IsConfiguration(err):
		return ErrCodeConfiguration
	case sdkerr.IsAPI(err):
		return ErrCodeAPI
	case sdkerr.IsDeserialization(err):
		return ErrCodeDeserialization
	case sdkerr.IsTransport(err):
		return ErrCodeTransport
	case source.IsNotFound(err):
		return ErrCodeNotFound
	case source.IsAccessDenied(err):
		return ErrCodeAccessDenied
	}
	var se *source.SourceError
	if errors.As(err, &se) {
		return ErrCodeSource
	}
	return ErrCodeInternal
}

// NewErrorRecord builds an ErrorRecord from err, filling Status and Details
// for API errors.
func NewErrorRecord(src, jobID string, err error) *ErrorRecord {
	rec := &ErrorRecord{
		Code:    ErrorCodeFor(err),
		Message: err.Error(),
		Source:  src,
		JobID:   jobID,
	}
	var apiErr *sdkerr.APIError
	if errors.As(err, &apiErr) {
		rec.Status = apiErr.Status
		if len(apiErr.Errors) > 0 {
			rec.Details = apiErr.Errors
		}
	}
	return rec
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Documents is the number of documents the run attempted.
	Documents int64 `json:"documents"`

	// Succeeded is the number of documents with an inference.
	Succeeded int64 `json:"succeeded"`

	// Failed is the count of documents that produced an error record.
	Failed int64 `json:"failed"`

	// Pending is the count of jobs left resumable (timed out or cancelled).
	Pending int64 `json:"pending"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
