package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/goextract/internal/observability"
	"github.com/3leaps/goextract/pkg/field"
	"github.com/3leaps/goextract/pkg/inference"
	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/jobregistry"
	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/source"
)

var pdf = []byte("%PDF-1.4\n%fake\n")

func invoice() source.InputSource {
	return source.NewBytesInputSource(pdf, "invoice.pdf")
}

func TestNew_Configuration(t *testing.T) {
	_, err := New(Settings{})
	require.Error(t, err)
	assert.True(t, sdkerr.IsConfiguration(err))
	var cfgErr *sdkerr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "APIKey", cfgErr.Field)

	_, err = New(Settings{APIKey: "  "})
	assert.True(t, sdkerr.IsConfiguration(err))

	_, err = New(Settings{APIKey: "k", Host: "ftp://example.com"})
	assert.True(t, sdkerr.IsConfiguration(err))

	_, err = New(Settings{APIKey: "k", Polling: job.PollingOptions{InitialDelaySec: 0.5, DelaySec: 1, MaxRetries: 3}})
	assert.True(t, sdkerr.IsConfiguration(err))

	c, err := New(Settings{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://"+DefaultHost, c.BaseURL())

	c, err = New(Settings{APIKey: "k", Host: "http://localhost:8080/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestNew_DefaultsToProcessLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	t.Cleanup(observability.Replace(zap.New(core)))

	api := newFakeAPI(t)
	c, err := New(Settings{APIKey: "test-key", Host: api.srv.URL}, WithHTTPClient(api.srv.Client()))
	require.NoError(t, err)

	_, err = c.Enqueue(context.Background(), inference.Extraction.Slug, invoice(), InferenceParameters{ModelID: "M1"})
	require.NoError(t, err)

	entries := logs.FilterMessage("Document enqueued").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "client", entries[0].LoggerName)
	assert.Equal(t, "J1", entries[0].ContextMap()["job_id"])
}

func TestEnqueueAndGetResult_RedirectOnSecondPoll(t *testing.T) {
	api := newFakeAPI(t)
	clock := &fakeClock{}
	c := newTestClient(t, api, clock)

	resp, err := EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), InferenceParameters{ModelID: "M1"})
	require.NoError(t, err)

	total, err := resp.Inference.Result.Fields.Simple("total")
	require.NoError(t, err)
	v, ok := total.NumberValue()
	require.True(t, ok)
	assert.Equal(t, 42.5, v)
	assert.Equal(t, field.ConfidenceHigh, total.Confidence())

	assert.Equal(t, 2, api.pollCount("J1"))
	assert.Equal(t, []float64{2, 1.5}, clock.recorded())

	calls := api.enqueueCalls()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, "extraction", call.slug)
	assert.Equal(t, "test-key", call.auth)
	assert.Equal(t, []string{"M1"}, call.fields["model_id"])
	assert.Equal(t, "invoice.pdf", call.filename)
	assert.Equal(t, pdf, call.content)
}

func TestEnqueue_SendsParameters(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, &fakeClock{})

	j, err := c.Enqueue(context.Background(), "extraction", invoice(), InferenceParameters{
		ModelID:     "M1",
		Alias:       "acme-42",
		WebhookIDs:  []string{"W1", "W2"},
		RAG:         Bool(true),
		RawText:     Bool(false),
		Confidence:  Bool(true),
		TextContext: "Invoices from ACME",
		DataSchema:  `{"replace":{"fields":[]}}`,
	})
	require.NoError(t, err)

	assert.Equal(t, "J1", j.ID)
	assert.Equal(t, job.Status("Waiting"), j.Status)
	assert.Equal(t, api.srv.URL+"/poll/J1", j.PollingURL)
	assert.Equal(t, 2025, j.CreatedAt.Year())

	fields := api.enqueueCalls()[0].fields
	assert.Equal(t, []string{"acme-42"}, fields["alias"])
	assert.Equal(t, []string{"W1", "W2"}, fields["webhook_ids"])
	assert.Equal(t, []string{"true"}, fields["rag"])
	assert.Equal(t, []string{"false"}, fields["raw_text"])
	assert.Equal(t, []string{"true"}, fields["confidence"])
	assert.NotContains(t, fields, "polygon")
	assert.Equal(t, []string{"Invoices from ACME"}, fields["text_context"])
	assert.Equal(t, []string{`{"replace":{"fields":[]}}`}, fields["data_schema"])
}

func TestEnqueue_URLSourceIsNotDownloaded(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, &fakeClock{})

	_, err := c.Enqueue(context.Background(), "extraction", source.NewURLInputSource("https://files.example.com/invoice.pdf"), InferenceParameters{ModelID: "M1"})
	require.NoError(t, err)

	call := api.enqueueCalls()[0]
	assert.Equal(t, []string{"https://files.example.com/invoice.pdf"}, call.fields["url"])
	assert.Empty(t, call.filename)
}

func TestEnqueue_Rejected(t *testing.T) {
	api := newFakeAPI(t)
	api.onEnqueue = func(enqueueCall) (int, string) {
		return http.StatusUnprocessableEntity, `{"status":422,"title":"Invalid model","detail":"model M9 does not exist","code":"422-001"}`
	}
	c := newTestClient(t, api, &fakeClock{})

	_, err := EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), InferenceParameters{ModelID: "M9"})
	require.Error(t, err)
	assert.True(t, sdkerr.IsAPI(err))

	var apiErr *sdkerr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)
	assert.Equal(t, "Invalid model", apiErr.Title)
	assert.Equal(t, "422-001", apiErr.Code)
	assert.Equal(t, 0, api.pollCount("J1"))
}

func TestEnqueue_EmbeddedJobErrorBecomes500(t *testing.T) {
	api := newFakeAPI(t)
	api.onEnqueue = func(enqueueCall) (int, string) {
		return http.StatusOK, `{"job":{"id":"J1","status":"Failed","error":{"message":"x"}}}`
	}
	c := newTestClient(t, api, &fakeClock{})

	_, err := c.Enqueue(context.Background(), "extraction", invoice(), InferenceParameters{ModelID: "M1"})
	var apiErr *sdkerr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Equal(t, "x", apiErr.Detail)
}

func TestEnqueue_ValidatesBeforeNetwork(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, &fakeClock{})

	_, err := c.Enqueue(context.Background(), "extraction", invoice(), InferenceParameters{})
	assert.True(t, sdkerr.IsConfiguration(err))

	_, err = c.Enqueue(context.Background(), "extraction", invoice(), InferenceParameters{ModelID: "M1", DataSchema: "{nope"})
	assert.True(t, sdkerr.IsConfiguration(err))

	_, err = c.Enqueue(context.Background(), "extraction", source.NewBytesInputSource(nil, "empty.pdf"), InferenceParameters{ModelID: "M1"})
	assert.ErrorIs(t, err, source.ErrInvalidSource)

	assert.Empty(t, api.enqueueCalls())
}

func TestPoll_FailedJobStopsImmediately(t *testing.T) {
	api := newFakeAPI(t)
	api.steps["J1"] = []step{{
		status: http.StatusOK,
		body:   `{"job":{"id":"J1","status":"Failed","error":{"status":422,"title":"Unreadable document","detail":"page 1 is blank"}}}`,
	}}
	c := newTestClient(t, api, &fakeClock{})

	_, err := EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), InferenceParameters{ModelID: "M1"})
	var apiErr *sdkerr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)
	assert.Equal(t, "Unreadable document", apiErr.Title)
	assert.Equal(t, 1, api.pollCount("J1"))
}

func TestPoll_AnyRedirectStatusCompletes(t *testing.T) {
	for _, status := range []int{http.StatusSeeOther, http.StatusTemporaryRedirect, http.StatusPermanentRedirect} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			api := newFakeAPI(t)
			api.steps["J1"] = []step{processingStep("J1"), {status: status, location: "/result/J1"}}
			c := newTestClient(t, api, &fakeClock{})

			j, err := c.Enqueue(context.Background(), inference.Extraction.Slug, invoice(), InferenceParameters{ModelID: "M1"})
			require.NoError(t, err)

			out, err := c.PollUntilTerminal(context.Background(), *j, job.PollingOptions{})
			require.NoError(t, err)
			assert.Equal(t, job.StateCompleted, out.State)
			assert.Equal(t, api.srv.URL+"/result/J1", out.ResultURL)
			assert.Equal(t, 2, api.pollCount("J1"))

			resp, err := GetResult(context.Background(), c, inference.Extraction, out.ResultURL)
			require.NoError(t, err)
			assert.Equal(t, "INF-J1", resp.Inference.ID)
		})
	}
}

func TestPoll_RedirectWithoutLocationIsAnError(t *testing.T) {
	api := newFakeAPI(t)
	api.steps["J1"] = []step{{status: http.StatusTemporaryRedirect}}
	c := newTestClient(t, api, &fakeClock{})

	_, err := c.FetchJob(context.Background(), "/poll/J1")
	assert.True(t, sdkerr.IsAPI(err))
}

func TestPoll_ProcessedJobUsesResultURL(t *testing.T) {
	api := newFakeAPI(t)
	api.steps["J1"] = []step{
		processingStep("J1"),
		processingStep("J1"),
		{status: http.StatusOK, body: `{"job":{"id":"J1","status":"Processed","result_url":"/result/J1"}}`},
	}
	api.results["J1"] = resultBody("J1", 7)
	c := newTestClient(t, api, &fakeClock{})

	resp, err := EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), InferenceParameters{ModelID: "M1"})
	require.NoError(t, err)
	total, err := resp.Inference.Result.Fields.Simple("total")
	require.NoError(t, err)
	assert.Equal(t, float64(7), total.Value())
	assert.Equal(t, 3, api.pollCount("J1"))
}

func TestPoll_ProcessedWithoutResultURLFallsBackToProductEndpoint(t *testing.T) {
	api := newFakeAPI(t)
	api.steps["J1"] = []step{{status: http.StatusOK, body: `{"job":{"id":"J1","status":"Processed"}}`}}
	c := newTestClient(t, api, &fakeClock{})

	_, err := EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), InferenceParameters{ModelID: "M1"})
	require.NoError(t, err)
	assert.Equal(t, 1, api.resultHits("J1"))
}

func TestGetResult_MissingInference(t *testing.T) {
	api := newFakeAPI(t)
	api.results["J1"] = `{"job":{"id":"J1"}}`
	c := newTestClient(t, api, &fakeClock{})

	_, err := EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), InferenceParameters{ModelID: "M1"})
	require.Error(t, err)
	assert.True(t, sdkerr.IsDeserialization(err))
	assert.Contains(t, err.Error(), "inference")
}

func TestPoll_TimeoutThenResume(t *testing.T) {
	api := newFakeAPI(t)
	api.defaultSteps = func(id string) []step { return []step{processingStep(id)} }
	registry := jobregistry.NewStore(t.TempDir())
	clock := &fakeClock{}
	c := newTestClient(t, api, clock, WithRegistry(registry))

	opts, err := job.NewPollingOptions(1, 1, 3)
	require.NoError(t, err)
	params := InferenceParameters{ModelID: "M1", PollingOptions: opts}

	_, err = EnqueueAndGetResult(context.Background(), c, inference.Extraction, invoice(), params)
	require.Error(t, err)
	assert.True(t, sdkerr.IsPollingTimeout(err))
	assert.Equal(t, 3, api.pollCount("J1"))
	assert.Equal(t, []float64{1, 1, 1}, clock.recorded())

	rec, err := registry.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, jobregistry.StateTimedOut, rec.State)
	assert.Equal(t, "extraction", rec.Product)
	assert.Equal(t, "bytes:invoice.pdf", rec.Source)
	assert.Equal(t, 3, rec.Attempts)
	assert.NotEmpty(t, rec.LastError)

	api.mu.Lock()
	api.steps["J1"] = []step{redirectStep("J1")}
	api.mu.Unlock()

	resp, err := ResumeAndGetResult(context.Background(), c, inference.Extraction, "J1")
	require.NoError(t, err)
	assert.Equal(t, "INF-J1", resp.Inference.ID)

	rec, err = registry.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, jobregistry.StateCompleted, rec.State)
	assert.Equal(t, api.srv.URL+"/result/J1", rec.ResultURL)

	// A completed record resumes without polling again.
	before := api.pollCount("J1")
	out, err := c.Resume(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, job.StateCompleted, out.State)
	assert.Equal(t, before, api.pollCount("J1"))
}

func TestPoll_CancelDuringWaitIsResumable(t *testing.T) {
	api := newFakeAPI(t)
	api.defaultSteps = func(id string) []step { return []step{processingStep(id)} }
	registry := jobregistry.NewStore(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &fakeClock{onWait: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	c := newTestClient(t, api, clock, WithRegistry(registry))

	j, err := c.Enqueue(ctx, "extraction", invoice(), InferenceParameters{ModelID: "M1"})
	require.NoError(t, err)

	out, err := c.PollUntilTerminal(ctx, *j, job.PollingOptions{})
	require.Error(t, err)
	assert.True(t, sdkerr.IsCancelled(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, job.StateCancelled, out.State)
	assert.Equal(t, 1, api.pollCount("J1"))

	rec, err := registry.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, jobregistry.StateCancelled, rec.State)
	assert.True(t, rec.State.Resumable())
}

func TestResume_RequiresRegistry(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, &fakeClock{})
	_, err := c.Resume(context.Background(), "J1")
	assert.True(t, sdkerr.IsConfiguration(err))
}

func TestGetJob(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, &fakeClock{})

	resp, err := c.GetJob(context.Background(), "J7")
	require.NoError(t, err)
	require.NotNil(t, resp.Job)
	assert.Equal(t, "J7", resp.Job.ID)
	assert.Equal(t, job.StatusProcessing, resp.Job.Status)
	assert.Equal(t, []string{"J7"}, api.jobLookups())

	resp, err = c.GetJob(context.Background(), api.srv.URL+"/poll/J8")
	require.NoError(t, err)
	assert.Equal(t, "J8", resp.Job.ID)
}

func TestFetchJob_ServerError(t *testing.T) {
	api := newFakeAPI(t)
	api.steps["J1"] = []step{{status: http.StatusServiceUnavailable, body: `upstream down`}}
	c := newTestClient(t, api, &fakeClock{})

	_, err := c.FetchJob(context.Background(), "/poll/J1")
	var apiErr *sdkerr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "upstream down")
}

func TestTransportFailure(t *testing.T) {
	api := newFakeAPI(t)
	c := newTestClient(t, api, &fakeClock{})
	api.srv.Close()

	_, err := c.Enqueue(context.Background(), "extraction", invoice(), InferenceParameters{ModelID: "M1"})
	require.Error(t, err)
	assert.True(t, sdkerr.IsTransport(err), fmt.Sprintf("%T: %v", err, err))
}
