package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goextract/pkg/job"
)

// step is one scripted poll answer.
type step struct {
	status   int
	body     string
	location string
}

func processingStep(id string) step {
	return step{status: http.StatusOK, body: fmt.Sprintf(`{"job":{"id":%q,"status":"Processing"}}`, id)}
}

func redirectStep(id string) step {
	return step{status: http.StatusFound, location: "/result/" + id}
}

func resultBody(id string, total float64) string {
	return fmt.Sprintf(`{"inference":{"id":"INF-%s","model":{"id":"M1"},"file":{"name":"invoice.pdf","page_count":1,"mime_type":"application/pdf"},"job":{"id":%q},"result":{"fields":{"total":{"value":%v,"confidence":"High"}}}}}`, id, id, total)
}

type enqueueCall struct {
	slug     string
	auth     string
	fields   map[string][]string
	filename string
	content  []byte
}

// fakeAPI is an in-process document API.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	nextID    int
	enqueues  []enqueueCall
	polls     map[string]int
	steps     map[string][]step
	results   map[string]string
	jobGets   []string
	resultHit map[string]int

	// onEnqueue overrides the enqueue answer when set.
	onEnqueue func(call enqueueCall) (int, string)

	// defaultSteps is used for jobs without a script.
	defaultSteps func(id string) []step
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{
		t:         t,
		polls:     map[string]int{},
		steps:     map[string][]step{},
		results:   map[string]string{},
		resultHit: map[string]int{},
		defaultSteps: func(id string) []step {
			return []step{processingStep(id), redirectStep(id)}
		},
	}

	r := chi.NewRouter()
	r.Post("/v2/products/{slug}/enqueue", api.handleEnqueue)
	r.Get("/poll/{id}", api.handlePoll)
	r.Get("/v2/jobs/{id}", api.handleJob)
	r.Get("/result/{id}", api.handleResult)
	r.Get("/v2/products/{slug}/results/{id}", api.handleResult)

	api.srv = httptest.NewServer(r)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		a.t.Errorf("parse enqueue form: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	call := enqueueCall{
		slug:   chi.URLParam(r, "slug"),
		auth:   r.Header.Get("Authorization"),
		fields: r.MultipartForm.Value,
	}
	if f, hdr, err := r.FormFile("file"); err == nil {
		call.filename = hdr.Filename
		call.content, _ = io.ReadAll(f)
		_ = f.Close()
	}

	a.mu.Lock()
	a.enqueues = append(a.enqueues, call)
	a.nextID++
	id := fmt.Sprintf("J%d", a.nextID)
	a.mu.Unlock()

	status, body := http.StatusAccepted, fmt.Sprintf(`{"job":{"id":%q,"status":"Waiting","model_id":"M1","filename":%q,"created_at":"2025-07-01T10:00:00.123456","polling_url":"/poll/%s"}}`, id, call.filename, id)
	if a.onEnqueue != nil {
		status, body = a.onEnqueue(call)
	}
	writeJSON(w, status, body)
}

func (a *fakeAPI) handlePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a.mu.Lock()
	n := a.polls[id]
	a.polls[id] = n + 1
	steps, ok := a.steps[id]
	if !ok {
		steps = a.defaultSteps(id)
	}
	a.mu.Unlock()

	if n >= len(steps) {
		n = len(steps) - 1
	}
	s := steps[n]
	if s.location != "" {
		w.Header().Set("Location", s.location)
	}
	writeJSON(w, s.status, s.body)
}

func (a *fakeAPI) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.mu.Lock()
	a.jobGets = append(a.jobGets, id)
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"job":{"id":%q,"status":"Processing","polling_url":"/poll/%s"}}`, id, id))
}

func (a *fakeAPI) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.mu.Lock()
	a.resultHit[id]++
	body, ok := a.results[id]
	a.mu.Unlock()
	if !ok {
		body = resultBody(id, 42.5)
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *fakeAPI) pollCount(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.polls[id]
}

func (a *fakeAPI) enqueueCalls() []enqueueCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]enqueueCall(nil), a.enqueues...)
}

func (a *fakeAPI) resultHits(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resultHit[id]
}

func (a *fakeAPI) jobLookups() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.jobGets...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	if body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// fakeClock records requested waits and returns immediately. It is safe for
// concurrent pollers.
type fakeClock struct {
	mu    sync.Mutex
	waits []float64

	// onWait, when set, runs before each wait returns.
	onWait func(n int)
}

var _ job.Clock = (*fakeClock)(nil)

func (c *fakeClock) After(ctx context.Context, seconds float64) error {
	c.mu.Lock()
	c.waits = append(c.waits, seconds)
	n := len(c.waits)
	c.mu.Unlock()
	if c.onWait != nil {
		c.onWait(n)
	}
	return ctx.Err()
}

func (c *fakeClock) recorded() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.waits...)
}

func newTestClient(t *testing.T, api *fakeAPI, clock *fakeClock, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(api.srv.Client()), WithClock(clock)}, opts...)
	c, err := New(Settings{APIKey: "test-key", Host: api.srv.URL}, opts...)
	require.NoError(t, err)
	return c
}
