package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// State is the polling state machine's position.
type State int

// Polling states. Completed, Failed and TimedOut are terminal. Cancelled
// leaves the job resumable.
const (
	StateEnqueued State = iota
	StatePolling
	StateCompleted
	StateFailed
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StatePolling:
		return "polling"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports Completed, Failed or TimedOut.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// PollResponse is the outcome of one poll request: either a job snapshot or
// a redirect to the result.
type PollResponse struct {
	Job         *Job
	RedirectURL string
}

// Fetcher issues a single poll request.
type Fetcher interface {
	FetchJob(ctx context.Context, pollingURL string) (*PollResponse, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, pollingURL string) (*PollResponse, error)

// FetchJob implements Fetcher.
func (f FetcherFunc) FetchJob(ctx context.Context, pollingURL string) (*PollResponse, error) {
	return f(ctx, pollingURL)
}

// Clock waits between attempts.
type Clock interface {
	// After blocks for seconds or until ctx is done, returning ctx.Err() in
	// the latter case.
	After(ctx context.Context, seconds float64) error
}

// RealClock waits on wall-clock timers.
type RealClock struct{}

// After implements Clock.
func (RealClock) After(ctx context.Context, seconds float64) error {
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Outcome is where polling stopped.
type Outcome struct {
	State State

	// Job is the last snapshot observed (the input job if none was fetched).
	Job Job

	// ResultURL is set when State is StateCompleted. It may be empty if the
	// server completed the job without advertising a result location.
	ResultURL string

	// Attempts counts poll requests issued.
	Attempts int
}

// Poller drives one job to a terminal state. A Poller holds no per-job
// state; each Poll call is independent.
type Poller struct {
	Fetcher Fetcher
	Clock   Clock
	Options PollingOptions
	Logger  *zap.Logger

	// OnSnapshot, when set, is called with every job snapshot fetched.
	OnSnapshot func(Job)
}

// Poll waits InitialDelaySec, then polls up to MaxRetries times, sleeping
// DelaySec between attempts. Attempts are strictly sequential.
//
// The returned Outcome is never nil. The error is nil only for
// StateCompleted. A redirect counts as one attempt.
func (p *Poller) Poll(ctx context.Context, j Job) (*Outcome, error) {
	out := &Outcome{State: StatePolling, Job: j}

	opts := p.Options
	if opts.IsZero() {
		opts = DefaultPollingOptions()
	}
	if err := opts.Validate(); err != nil {
		out.State = StateEnqueued
		return out, err
	}
	if j.PollingURL == "" {
		out.State = StateEnqueued
		return out, &sdkerr.ConfigurationError{Field: "PollingURL", Message: fmt.Sprintf("job %s has no polling URL", j.ID)}
	}
	if p.Fetcher == nil {
		out.State = StateEnqueued
		return out, &sdkerr.ConfigurationError{Field: "Fetcher", Message: "required"}
	}

	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("job_id", j.ID))

	log.Debug("Polling job",
		zap.Float64("initial_delay_sec", opts.InitialDelaySec),
		zap.Float64("delay_sec", opts.DelaySec),
		zap.Int("max_retries", opts.MaxRetries),
		zap.Duration("max_wait", opts.MaxWait()))

	if err := clock.After(ctx, opts.InitialDelaySec); err != nil {
		return cancelled(out, log, err)
	}

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(out, log, err)
		}

		out.Attempts = attempt
		resp, err := p.Fetcher.FetchJob(ctx, j.PollingURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(out, log, ctxErr)
			}
			if sdkerr.IsAPI(err) {
				out.State = StateFailed
			}
			log.Warn("Poll request failed", zap.Int("attempt", attempt), zap.Error(err))
			return out, err
		}

		if resp == nil {
			out.State = StateFailed
			return out, &sdkerr.DeserializationError{Message: "poll returned no response"}
		}
		if resp.RedirectURL != "" {
			out.State = StateCompleted
			out.ResultURL = resp.RedirectURL
			log.Debug("Job redirected to result", zap.Int("attempt", attempt), zap.String("result_url", resp.RedirectURL))
			return out, nil
		}
		if resp.Job == nil {
			out.State = StateFailed
			return out, &sdkerr.DeserializationError{Message: "poll response carried neither a job nor a redirect"}
		}

		out.Job = *resp.Job
		if p.OnSnapshot != nil {
			p.OnSnapshot(out.Job)
		}

		switch {
		case out.Job.IsFailed():
			out.State = StateFailed
			payload := sdkerr.ErrorResponse{Status: http.StatusInternalServerError, Title: "Job failed"}
			if out.Job.Error != nil {
				payload = *out.Job.Error
				if payload.Status == 0 {
					payload.Status = http.StatusInternalServerError
				}
			}
			log.Info("Job failed", zap.Int("attempt", attempt), zap.String("status", string(out.Job.Status)))
			return out, sdkerr.NewAPIError("poll", payload)

		case out.Job.IsCompleted():
			out.State = StateCompleted
			out.ResultURL = out.Job.ResultURL
			log.Debug("Job processed", zap.Int("attempt", attempt))
			return out, nil
		}

		log.Debug("Job still processing", zap.Int("attempt", attempt), zap.String("status", string(out.Job.Status)))

		if attempt < opts.MaxRetries {
			if err := clock.After(ctx, opts.DelaySec); err != nil {
				return cancelled(out, log, err)
			}
		}
	}

	out.State = StateTimedOut
	log.Info("Polling budget exhausted", zap.Int("attempts", out.Attempts))
	return out, &sdkerr.PollingTimeoutError{JobID: j.ID, Attempts: out.Attempts, MaxWait: opts.MaxWait()}
}

func cancelled(out *Outcome, log *zap.Logger, cause error) (*Outcome, error) {
	out.State = StateCancelled
	log.Debug("Polling cancelled", zap.Int("attempts", out.Attempts), zap.Error(cause))
	if errors.Is(cause, sdkerr.ErrCancelled) {
		return out, cause
	}
	return out, fmt.Errorf("%w: %w", sdkerr.ErrCancelled, cause)
}
