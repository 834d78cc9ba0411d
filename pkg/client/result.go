package client

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/3leaps/goextract/pkg/inference"
	"github.com/3leaps/goextract/pkg/response"
	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/source"
)

// maxResultRedirects bounds redirects followed while fetching a result.
const maxResultRedirects = 3

// GetResult fetches and parses a finished inference from resultURL.
func GetResult[R inference.Result](ctx context.Context, c *Client, product inference.Product[R], resultURL string) (*inference.Response[R], error) {
	target := c.resolve(resultURL)
	for hop := 0; ; hop++ {
		resp, err := c.send(ctx, "result", http.MethodGet, target, nil, nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 == 3 {
			if resp.Location() == "" || hop >= maxResultRedirects {
				return nil, response.ErrorFromResponse("result", resp)
			}
			target = c.resolve(resp.Location())
			continue
		}
		if !response.IsValidSyncResponse(resp) {
			return nil, response.ErrorFromResponse("result", resp)
		}
		return product.ParseResponse(resp.Raw)
	}
}

// EnqueueAndGetResult enqueues src, polls the job to completion and parses
// the result. It returns either a populated response or exactly one error;
// a timed-out or cancelled job is an error. Callers that need to resume
// must configure a registry (WithRegistry) and call Resume.
func EnqueueAndGetResult[R inference.Result](ctx context.Context, c *Client, product inference.Product[R], src source.InputSource, params InferenceParameters) (*inference.Response[R], error) {
	j, err := c.Enqueue(ctx, product.Slug, src, params)
	if err != nil {
		return nil, err
	}
	out, err := c.PollUntilTerminal(ctx, *j, params.PollingOptions)
	if err != nil {
		return nil, err
	}
	return resultFor(ctx, c, product, out.ResultURL, out.Job.ID)
}

// ResumeAndGetResult resumes a persisted job and parses its result.
func ResumeAndGetResult[R inference.Result](ctx context.Context, c *Client, product inference.Product[R], jobID string) (*inference.Response[R], error) {
	out, err := c.Resume(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return resultFor(ctx, c, product, out.ResultURL, out.Job.ID)
}

func resultFor[R inference.Result](ctx context.Context, c *Client, product inference.Product[R], resultURL, jobID string) (*inference.Response[R], error) {
	if resultURL == "" {
		if jobID == "" {
			return nil, &sdkerr.DeserializationError{Message: "completed job has neither a result URL nor an ID"}
		}
		resultURL = c.resultURL(product.Slug, jobID)
		c.logger.Debug("Completed job has no result URL; using product results endpoint", zap.String("job_id", jobID))
	}
	return GetResult(ctx, c, product, resultURL)
}
