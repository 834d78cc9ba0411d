package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/jobregistry"
	"github.com/3leaps/goextract/pkg/response"
	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/source"
	"github.com/3leaps/goextract/pkg/transport"
)

// Enqueue sends one document to the product identified by slug and returns
// the created job. The response is validated before the job is built.
func (c *Client) Enqueue(ctx context.Context, slug string, src source.InputSource, params InferenceParameters) (*job.Job, error) {
	if src == nil {
		return nil, &sdkerr.ConfigurationError{Field: "InputSource", Message: "required"}
	}
	if strings.TrimSpace(slug) == "" {
		return nil, &sdkerr.ConfigurationError{Field: "Product", Message: "slug is required"}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	doc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}

	form := transport.NewForm()
	params.addTo(form)
	if doc.IsRemote() {
		form.Add("url", doc.URL)
	} else {
		form.AttachFile(transport.FilePart{
			FieldName:   "file",
			Filename:    doc.Filename,
			ContentType: doc.MimeType,
			Content:     doc.Bytes,
		})
	}
	body, contentType, err := form.Encode()
	if err != nil {
		return nil, &sdkerr.TransportError{Op: "enqueue", Err: err}
	}
	if params.CloseFile {
		doc.Bytes = nil
	}

	log := c.logger.With(zap.String("source", src.Describe()), zap.String("product", slug))
	log.Debug("Enqueueing document", zap.String("model_id", params.ModelID), zap.Int("bytes", len(body)))

	header := http.Header{}
	header.Set("Content-Type", contentType)
	resp, err := c.send(ctx, "enqueue", http.MethodPost, c.enqueueURL(slug), header, body)
	if err != nil {
		return nil, err
	}
	if !response.IsValidAsyncResponse(resp) || resp.IsRedirect() {
		apiErr := response.ErrorFromResponse("enqueue", resp)
		log.Warn("Enqueue rejected", zap.Int("status", apiErr.Status), zap.Error(apiErr))
		return nil, apiErr
	}

	j, err := job.FromBody(resp.Body)
	if err != nil {
		return nil, err
	}
	c.normalizeURLs(j)
	log.Info("Document enqueued", zap.String("job_id", j.ID))

	c.saveRecord(ctx, &jobregistry.Record{
		JobID:   j.ID,
		Product: slug,
		Source:  src.Describe(),
		State:   jobregistry.StateEnqueued,
		Job:     *j,
	})
	return j, nil
}

// GetJob fetches the current state of a job by ID or polling URL. A job
// that already finished may be answered with a redirect; the returned
// PollResponse then carries only RedirectURL.
func (c *Client) GetJob(ctx context.Context, jobIDOrURL string) (*job.PollResponse, error) {
	target := jobIDOrURL
	if !strings.Contains(jobIDOrURL, "/") {
		target = c.jobURL(jobIDOrURL)
	}
	return c.FetchJob(ctx, target)
}

// FetchJob implements job.Fetcher. A failed job is returned as a job (not an
// error) so the poller can classify it.
func (c *Client) FetchJob(ctx context.Context, pollingURL string) (*job.PollResponse, error) {
	resp, err := c.send(ctx, "poll", http.MethodGet, c.resolve(pollingURL), nil, nil)
	if err != nil {
		return nil, err
	}

	// Any 3xx pointing somewhere means the job finished and the target is
	// its result.
	if resp.StatusCode/100 == 3 {
		loc := resp.Location()
		if loc == "" {
			return nil, response.ErrorFromResponse("poll", resp)
		}
		return &job.PollResponse{RedirectURL: c.resolve(loc)}, nil
	}

	if response.IsValidAsyncResponse(resp) {
		j, err := job.FromBody(resp.Body)
		if err != nil {
			return nil, err
		}
		c.normalizeURLs(j)
		return &job.PollResponse{Job: j}, nil
	}

	// Failed jobs arrive as an invalid async response carrying a job error.
	if _, ok := resp.Object("job"); ok {
		if j, err := job.FromBody(resp.Body); err == nil && j.IsFailed() {
			c.normalizeURLs(j)
			return &job.PollResponse{Job: j}, nil
		}
	}
	return nil, response.ErrorFromResponse("poll", resp)
}

func (c *Client) normalizeURLs(j *job.Job) {
	if j.PollingURL == "" {
		j.PollingURL = c.jobURL(j.ID)
	} else {
		j.PollingURL = c.resolve(j.PollingURL)
	}
	if j.ResultURL != "" {
		j.ResultURL = c.resolve(j.ResultURL)
	}
}

// PollUntilTerminal drives j to a terminal state (or until cancelled). A
// zero opts uses the client's polling schedule. Every snapshot is written
// to the registry, if one is configured.
func (c *Client) PollUntilTerminal(ctx context.Context, j job.Job, opts job.PollingOptions) (*job.Outcome, error) {
	rec := c.loadRecord(ctx, j)
	poller := &job.Poller{
		Fetcher: c,
		Clock:   c.clock,
		Options: c.pollingOptions(opts),
		Logger:  c.logger,
		OnSnapshot: func(s job.Job) {
			if rec == nil {
				return
			}
			rec.Job = s
			rec.State = jobregistry.StatePolling
			c.saveRecord(ctx, rec)
		},
	}

	out, err := poller.Poll(ctx, j)
	if rec != nil {
		rec.Job = out.Job
		rec.State = jobregistry.StateOf(out.State)
		rec.ResultURL = out.ResultURL
		rec.Attempts = out.Attempts
		rec.LastError = ""
		if err != nil {
			rec.LastError = err.Error()
		}
		c.saveRecord(ctx, rec)
	}
	return out, err
}

// Resume restarts polling for a job persisted in the registry. Jobs that
// already completed are reported without a network call; failed jobs
// return their recorded error as an API error.
func (c *Client) Resume(ctx context.Context, jobID string) (*job.Outcome, error) {
	if c.registry == nil {
		return nil, &sdkerr.ConfigurationError{Field: "Registry", Message: "resume requires a job registry"}
	}
	rec, err := c.registry.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch rec.State {
	case jobregistry.StateCompleted:
		return &job.Outcome{State: job.StateCompleted, Job: rec.Job, ResultURL: rec.ResultURL, Attempts: rec.Attempts}, nil
	case jobregistry.StateFailed:
		payload := sdkerr.ErrorResponse{Status: http.StatusInternalServerError, Title: "Job failed", Detail: rec.LastError}
		if rec.Job.Error != nil {
			payload = *rec.Job.Error
		}
		return &job.Outcome{State: job.StateFailed, Job: rec.Job, Attempts: rec.Attempts}, sdkerr.NewAPIError("resume", payload)
	}

	c.logger.Info("Resuming job", zap.String("job_id", rec.JobID), zap.String("state", string(rec.State)))
	return c.PollUntilTerminal(ctx, rec.Job, job.PollingOptions{})
}

func (c *Client) loadRecord(ctx context.Context, j job.Job) *jobregistry.Record {
	if c.registry == nil {
		return nil
	}
	rec, err := c.registry.Get(ctx, j.ID)
	if err != nil {
		if !errors.Is(err, jobregistry.ErrNotFound) {
			c.logger.Warn("Failed to load job record", zap.String("job_id", j.ID), zap.Error(err))
		}
		return &jobregistry.Record{JobID: j.ID, State: jobregistry.StateEnqueued, Job: j}
	}
	return rec
}

// saveRecord persists rec. Registry failures are logged, never returned:
// they must not fail a job that the server processed.
func (c *Client) saveRecord(ctx context.Context, rec *jobregistry.Record) {
	if c.registry == nil || rec == nil {
		return
	}
	if err := c.registry.Put(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn("Failed to persist job record", zap.String("job_id", rec.JobID), zap.Error(err))
	}
}
