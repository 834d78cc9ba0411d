// Package transport sends API requests and reports the raw response.
//
// Redirects are never followed: the polling state machine must observe the
// 3xx itself to learn the result location.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/goextract/pkg/response"
	"github.com/3leaps/goextract/pkg/sdkerr"
)

// RequestIDHeader carries the client-generated correlation ID.
const RequestIDHeader = "X-Request-ID"

// Request is a single API call.
type Request struct {
	// Op names the client operation for errors and logs (e.g., "enqueue").
	Op string

	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Transport sends a request and returns the raw response, including 3xx and
// error statuses. Only network failures are returned as errors.
type Transport interface {
	Send(ctx context.Context, req *Request) (*response.Response, error)
}

// Config tunes the HTTP transport.
type Config struct {
	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64

	// UserAgent is sent on every request.
	UserAgent string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   120 * time.Second,
		UserAgent: "goextract",
	}
}

// HTTP implements Transport over net/http.
type HTTP struct {
	client  *http.Client
	limiter *rate.Limiter
	config  Config
	logger  *zap.Logger
}

// NewHTTP builds an HTTP transport. base may be nil; it is copied, never
// modified.
func NewHTTP(base *http.Client, cfg Config, logger *zap.Logger) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.Timeout = cfg.Timeout
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	t := &HTTP{client: client, config: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return t
}

// Send implements Transport.
func (t *HTTP) Send(ctx context.Context, req *Request) (*response.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &sdkerr.TransportError{Op: req.Op, URL: req.URL, Err: err}
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &sdkerr.TransportError{Op: req.Op, URL: req.URL, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	requestID := httpReq.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.New().String()
		httpReq.Header.Set(RequestIDHeader, requestID)
	}
	httpReq.Header.Set("User-Agent", t.config.UserAgent)

	log := t.logger.With(
		zap.String("op", req.Op),
		zap.String("method", req.Method),
		zap.String("url", req.URL),
		zap.String("request_id", requestID),
	)

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		log.Debug("Request failed", zap.Error(err))
		return nil, &sdkerr.TransportError{Op: req.Op, URL: req.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sdkerr.TransportError{Op: req.Op, URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}

	log.Debug("Request complete",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))

	return response.New(resp.StatusCode, resp.Header, raw), nil
}
