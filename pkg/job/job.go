// Package job models asynchronous processing jobs and the polling state
// machine that drives one job to a terminal state.
package job

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	schemasassets "github.com/3leaps/goextract/internal/assets/schemas"
	"github.com/3leaps/goextract/pkg/response"
	"github.com/3leaps/goextract/pkg/sdkerr"
)

var envelopeValidator = response.NewSchemaValidator("job-response.schema.json", schemasassets.JobResponseSchema)

// Status is the server-reported job status. Unknown strings are kept verbatim.
type Status string

// Known job statuses.
const (
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusFailed     Status = "Failed"
)

// Webhook is the delivery record of one webhook attached to a job.
type Webhook struct {
	ID        string                `json:"id"`
	CreatedAt *time.Time            `json:"created_at,omitempty"`
	Status    string                `json:"status"`
	Error     *sdkerr.ErrorResponse `json:"error,omitempty"`
}

// Job is a handle to one asynchronous processing request.
//
// Jobs are values. Each poll yields a fresh Job; nothing mutates an existing
// one, so earlier snapshots may be read concurrently with later polls.
type Job struct {
	ID          string                `json:"id"`
	Status      Status                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	ModelID     string                `json:"model_id"`
	Filename    string                `json:"filename"`
	Alias       string                `json:"alias,omitempty"`
	PollingURL  string                `json:"polling_url"`
	ResultURL   string                `json:"result_url,omitempty"`
	Error       *sdkerr.ErrorResponse `json:"error,omitempty"`
	Webhooks    []Webhook             `json:"webhooks,omitempty"`
}

// IsFailed reports a failed status or a non-empty error.
func (j Job) IsFailed() bool {
	return j.Status == StatusFailed || !j.Error.IsEmpty()
}

// IsCompleted reports a processed job with no error.
func (j Job) IsCompleted() bool {
	return j.Status == StatusProcessed && j.Error.IsEmpty()
}

// IsTerminal reports whether polling can stop.
func (j Job) IsTerminal() bool {
	return j.IsCompleted() || j.IsFailed()
}

// wireJob mirrors the server's job object. Timestamps are decoded by hand
// since the server omits the UTC offset.
type wireJob struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	CreatedAt   *string       `json:"created_at"`
	CompletedAt *string       `json:"completed_at"`
	ModelID     string        `json:"model_id"`
	Filename    string        `json:"filename"`
	Alias       *string       `json:"alias"`
	PollingURL  string        `json:"polling_url"`
	ResultURL   *string       `json:"result_url"`
	Error       any           `json:"error"`
	Webhooks    []wireWebhook `json:"webhooks"`
}

type wireWebhook struct {
	ID        string  `json:"id"`
	CreatedAt *string `json:"created_at"`
	Status    string  `json:"status"`
	Error     any     `json:"error"`
}

// Parse decodes a {"job": {...}} document.
func Parse(data []byte) (*Job, error) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "invalid JSON", Err: err}
	}
	return FromBody(body)
}

// FromBody builds a Job from a decoded response body.
func FromBody(body map[string]any) (*Job, error) {
	if _, ok := body["job"].(map[string]any); !ok {
		return nil, &sdkerr.DeserializationError{Message: "missing job object"}
	}
	if err := envelopeValidator.Validate(body); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "job envelope does not match schema", Path: "job", Err: err}
	}

	b, err := json.Marshal(body["job"])
	if err != nil {
		return nil, &sdkerr.DeserializationError{Message: "re-encode job", Path: "job", Err: err}
	}
	var w wireJob
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "decode job", Path: "job", Err: err}
	}
	return w.toJob()
}

func (w wireJob) toJob() (*Job, error) {
	j := &Job{
		ID:         w.ID,
		Status:     Status(w.Status),
		ModelID:    w.ModelID,
		Filename:   w.Filename,
		PollingURL: w.PollingURL,
	}
	if w.Alias != nil {
		j.Alias = *w.Alias
	}
	if w.ResultURL != nil {
		j.ResultURL = *w.ResultURL
	}
	j.Error = errorPayload(w.Error)

	if w.CreatedAt != nil && *w.CreatedAt != "" {
		t, err := ParseTimestamp(*w.CreatedAt)
		if err != nil {
			return nil, &sdkerr.DeserializationError{Message: "bad timestamp", Path: "job.created_at", Err: err}
		}
		j.CreatedAt = t
	}
	if w.CompletedAt != nil && *w.CompletedAt != "" {
		t, err := ParseTimestamp(*w.CompletedAt)
		if err != nil {
			return nil, &sdkerr.DeserializationError{Message: "bad timestamp", Path: "job.completed_at", Err: err}
		}
		j.CompletedAt = &t
	}

	for i, wh := range w.Webhooks {
		hook := Webhook{ID: wh.ID, Status: wh.Status}
		hook.Error = errorPayload(wh.Error)
		if wh.CreatedAt != nil && *wh.CreatedAt != "" {
			t, err := ParseTimestamp(*wh.CreatedAt)
			if err != nil {
				return nil, &sdkerr.DeserializationError{Message: "bad timestamp", Path: fmt.Sprintf("job.webhooks[%d].created_at", i), Err: err}
			}
			hook.CreatedAt = &t
		}
		j.Webhooks = append(j.Webhooks, hook)
	}
	return j, nil
}

func errorPayload(raw any) *sdkerr.ErrorResponse {
	payload := response.DecodeErrorPayload(raw)
	if payload.IsEmpty() {
		return nil
	}
	return &payload
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a server timestamp. A timestamp without a UTC
// offset is interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
