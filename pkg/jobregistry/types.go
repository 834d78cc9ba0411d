package jobregistry

import (
	"context"
	"errors"
	"time"

	"github.com/3leaps/goextract/pkg/job"
)

// ErrNotFound indicates no record exists for a job ID.
var ErrNotFound = errors.New("job record not found")

// State is the persisted polling state of a job.
//
// NOTE: These values are persisted in job.json and the jobs table and are
// part of the stable on-disk contract.
type State string

const (
	StateEnqueued  State = "enqueued"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// StateOf maps a polling state onto its persisted form.
func StateOf(s job.State) State {
	switch s {
	case job.StateEnqueued:
		return StateEnqueued
	case job.StatePolling:
		return StatePolling
	case job.StateCompleted:
		return StateCompleted
	case job.StateFailed:
		return StateFailed
	case job.StateTimedOut:
		return StateTimedOut
	case job.StateCancelled:
		return StateCancelled
	default:
		return StatePolling
	}
}

// Resumable reports whether polling may be restarted from this state.
// Timed-out jobs are resumable: the server may still finish them.
func (s State) Resumable() bool {
	switch s {
	case StateEnqueued, StatePolling, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// Record is the persisted handle of one job.
//
// The schema is designed for backward-compatible extension (additive fields).
type Record struct {
	JobID     string    `json:"job_id"`
	Product   string    `json:"product"`
	Source    string    `json:"source,omitempty"`
	State     State     `json:"state"`
	Job       job.Job   `json:"job"`
	ResultURL string    `json:"result_url,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry persists job records so polling can be resumed by a later
// process.
type Registry interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, jobID string) (*Record, error)

	// List returns all records, most recently created first.
	List(ctx context.Context) ([]Record, error)

	Delete(ctx context.Context, jobID string) error
	Close() error
}

// Resumable filters records whose polling may be restarted.
func Resumable(records []Record) []Record {
	var out []Record
	for _, r := range records {
		if r.State.Resumable() {
			out = append(out, r)
		}
	}
	return out
}

func stamp(rec *Record, now time.Time) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}
