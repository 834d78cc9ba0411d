// Package client orchestrates the enqueue, poll and result calls of the
// document API.
//
// Typical use:
//
//	c, err := client.New(client.Settings{APIKey: key})
//	if err != nil {
//		return err
//	}
//	resp, err := client.EnqueueAndGetResult(ctx, c, inference.Extraction,
//		source.NewPathInputSource("invoice.pdf"),
//		client.InferenceParameters{ModelID: modelID})
//
// Result-fetching helpers are package functions because they are generic
// over the product's result type.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/goextract/internal/observability"
	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/jobregistry"
	"github.com/3leaps/goextract/pkg/response"
	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/transport"
)

// DefaultHost is the API host used when Settings.Host is empty.
const DefaultHost = "api.goextract.dev"

// Settings holds the connection settings of a Client.
type Settings struct {
	// APIKey is sent in the Authorization header. Required.
	APIKey string

	// Host is a bare host name ("api.example.com") or a base URL
	// ("http://localhost:8080"). Bare hosts use https.
	Host string

	// Timeout bounds a single HTTP request. Zero uses the transport default.
	Timeout time.Duration

	// RateLimit caps requests per second across the client. Zero disables it.
	RateLimit float64

	// UserAgent overrides the default User-Agent.
	UserAgent string

	// Polling is the default polling schedule. Zero uses
	// job.DefaultPollingOptions.
	Polling job.PollingOptions
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithHTTPClient sets the base net/http client of the default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the polling clock.
func WithClock(clock job.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger. The default is the process logger, which is
// a no-op until observability.Init is called.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry persists job snapshots so polling can be resumed later.
func WithRegistry(r jobregistry.Registry) Option {
	return func(c *Client) { c.registry = r }
}

// Client talks to the document API. It is safe for concurrent use; each
// polling loop it runs is independent.
type Client struct {
	settings   Settings
	base       *url.URL
	transport  transport.Transport
	httpClient *http.Client
	clock      job.Clock
	logger     *zap.Logger
	registry   jobregistry.Registry
}

// New validates settings and builds a client. A missing API key or an
// invalid polling schedule fails here, before any network call.
func New(settings Settings, opts ...Option) (*Client, error) {
	settings.APIKey = strings.TrimSpace(settings.APIKey)
	if settings.APIKey == "" {
		return nil, &sdkerr.ConfigurationError{Field: "APIKey", Message: "required (set GOEXTRACT_API_KEY or pass it explicitly)"}
	}
	base, err := parseHost(settings.Host)
	if err != nil {
		return nil, err
	}
	if !settings.Polling.IsZero() {
		if err := settings.Polling.Validate(); err != nil {
			return nil, err
		}
	}

	c := &Client{
		settings: settings,
		base:     base,
		clock:    job.RealClock{},
		logger:   observability.L().Named("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		cfg := transport.DefaultConfig()
		if settings.Timeout > 0 {
			cfg.Timeout = settings.Timeout
		}
		if settings.UserAgent != "" {
			cfg.UserAgent = settings.UserAgent
		}
		cfg.RateLimit = settings.RateLimit
		c.transport = transport.NewHTTP(c.httpClient, cfg, c.logger.Named("transport"))
	}
	return c, nil
}

func parseHost(host string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return nil, &sdkerr.ConfigurationError{Field: "Host", Message: fmt.Sprintf("invalid API host %q", host)}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// resolve turns a server-provided URL, possibly relative, into an absolute
// one.
func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return u.String()
	}
	return c.base.ResolveReference(u).String()
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.String() + "/v2/" + strings.Join(escaped, "/")
}

func (c *Client) enqueueURL(slug string) string {
	return c.endpoint("products", slug, "enqueue")
}

func (c *Client) jobURL(jobID string) string {
	return c.endpoint("jobs", jobID)
}

func (c *Client) resultURL(slug, jobID string) string {
	return c.endpoint("products", slug, "results", jobID)
}

func (c *Client) send(ctx context.Context, op, method, target string, header http.Header, body []byte) (*response.Response, error) {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", c.settings.APIKey)
	header.Set("Accept", "application/json")
	return c.transport.Send(ctx, &transport.Request{
		Op:     op,
		Method: method,
		URL:    target,
		Header: header,
		Body:   body,
	})
}

func (c *Client) pollingOptions(override job.PollingOptions) job.PollingOptions {
	if !override.IsZero() {
		return override
	}
	if !c.settings.Polling.IsZero() {
		return c.settings.Polling
	}
	return job.DefaultPollingOptions()
}
