package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/3leaps/goextract/pkg/inference"
	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/output"
	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/source"
)

// DefaultBatchConcurrency is the number of jobs a batch keeps in flight.
const DefaultBatchConcurrency = 4

// BatchOptions configures ProcessBatch.
type BatchOptions struct {
	// Concurrency caps jobs in flight. Zero uses DefaultBatchConcurrency.
	Concurrency int

	// Params applies to every document.
	Params InferenceParameters

	// Output receives one record per document, then a summary. Required.
	Output output.Writer
}

// NewRunID returns a correlation ID for a batch run.
func NewRunID() string {
	return uuid.New().String()
}

// ProcessBatch runs every source through enqueue, poll and result fetch,
// with at most opts.Concurrency jobs in flight. Per-document failures
// become error records; timed-out and cancelled jobs become job records
// so they can be resumed. Only output failures abort the batch.
func ProcessBatch[R inference.Result](ctx context.Context, c *Client, product inference.Product[R], sources []source.InputSource, opts BatchOptions) (*output.SummaryRecord, error) {
	if opts.Output == nil {
		return nil, &sdkerr.ConfigurationError{Field: "Output", Message: "required"}
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	start := time.Now()
	var documents, succeeded, failed, pending atomic.Int64
	writeCtx := context.WithoutCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, src := range sources {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			documents.Add(1)
			desc := src.Describe()
			log := c.logger.With(zap.String("source", desc))

			j, err := c.Enqueue(gctx, product.Slug, src, opts.Params)
			if err != nil {
				failed.Add(1)
				log.Warn("Enqueue failed", zap.Error(err))
				return opts.Output.WriteError(writeCtx, output.NewErrorRecord(desc, "", err))
			}

			out, err := c.PollUntilTerminal(gctx, *j, opts.Params.PollingOptions)
			if err != nil {
				if out != nil && (out.State == job.StateTimedOut || out.State == job.StateCancelled) {
					pending.Add(1)
					log.Info("Job left pending", zap.String("job_id", j.ID), zap.Stringer("state", out.State))
					return opts.Output.WriteJob(writeCtx, &output.JobRecord{
						Source:     desc,
						JobID:      j.ID,
						State:      out.State.String(),
						Status:     string(out.Job.Status),
						Attempts:   out.Attempts,
						PollingURL: j.PollingURL,
					})
				}
				failed.Add(1)
				return opts.Output.WriteError(writeCtx, output.NewErrorRecord(desc, j.ID, err))
			}

			resp, err := resultFor(gctx, c, product, out.ResultURL, out.Job.ID)
			if err != nil {
				failed.Add(1)
				log.Warn("Result fetch failed", zap.String("job_id", j.ID), zap.Error(err))
				return opts.Output.WriteError(writeCtx, output.NewErrorRecord(desc, j.ID, err))
			}

			succeeded.Add(1)
			return opts.Output.WriteInference(writeCtx, &output.InferenceRecord{
				Source:      desc,
				JobID:       j.ID,
				InferenceID: resp.Inference.ID,
				ModelID:     resp.Inference.Model.ID,
				Filename:    resp.Inference.File.Name,
				Attempts:    out.Attempts,
				Inference:   resp.Raw["inference"],
			})
		})
	}

	runErr := g.Wait()

	duration := time.Since(start)
	summary := &output.SummaryRecord{
		Documents:     documents.Load(),
		Succeeded:     succeeded.Load(),
		Failed:        failed.Load(),
		Pending:       pending.Load(),
		Duration:      duration,
		DurationHuman: duration.Round(time.Millisecond).String(),
	}
	if err := opts.Output.WriteSummary(writeCtx, summary); err != nil && runErr == nil {
		runErr = err
	}

	c.logger.Info("Batch completed",
		zap.Int64("documents", summary.Documents),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Int64("pending", summary.Pending),
		zap.Duration("duration", duration))
	return summary, runErr
}
