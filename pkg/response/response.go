// Package response classifies raw API responses and normalizes the server's
// inconsistent error encodings.
//
// The API sometimes answers HTTP 200 while embedding a failure in the body.
// CleanRequestData folds those embedded failures into StatusCode so that one
// field is authoritative for all downstream error handling.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Response is one HTTP exchange as seen by the client, before any
// domain-level parsing.
type Response struct {
	// StatusCode is the HTTP status. Zero means no status was observed.
	StatusCode int

	// Header holds the response headers (Location is read for redirects).
	Header http.Header

	// Body is the decoded JSON object, nil when the body is not a JSON object.
	Body map[string]any

	// Raw is the undecoded body.
	Raw []byte
}

// New builds a Response, decoding raw when it holds a JSON object.
func New(statusCode int, header http.Header, raw []byte) *Response {
	r := &Response{StatusCode: statusCode, Header: header, Raw: raw}
	if len(raw) > 0 {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err == nil {
			r.Body = body
		}
	}
	return r
}

// Location returns the redirect target, if any.
func (r *Response) Location() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Location")
}

// IsRedirect reports a 300-302 status.
func (r *Response) IsRedirect() bool {
	return r != nil && r.StatusCode >= 300 && r.StatusCode <= 302
}

// Object returns the named top-level object from the body.
func (r *Response) Object(key string) (map[string]any, bool) {
	if r == nil || r.Body == nil {
		return nil, false
	}
	m, ok := r.Body[key].(map[string]any)
	return m, ok
}

// apiRequestStatus returns the nested api_request.status_code, if present.
// present is true when the key exists; numeric is false when it cannot be
// read as a number.
func (r *Response) apiRequestStatus() (code int, present bool, numeric bool) {
	req, ok := r.Object("api_request")
	if !ok {
		return 0, false, false
	}
	raw, ok := req["status_code"]
	if !ok || raw == nil {
		return 0, false, false
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, true, false
		}
		return n, true, true
	default:
		return 0, true, false
	}
}

// jobError returns the job-level error object and whether it carries data.
func (r *Response) jobError() (any, bool) {
	job, ok := r.Object("job")
	if !ok {
		return nil, false
	}
	return job["error"], isNonEmpty(job["error"])
}

func isNonEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case map[string]any:
		return len(x) > 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	default:
		return true
	}
}
