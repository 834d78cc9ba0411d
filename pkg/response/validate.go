package response

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

const maxDetailBytes = 500

// IsValidSyncResponse reports whether the status is in [200, 302] and no
// nested api_request.status_code above 399 is present.
func IsValidSyncResponse(r *Response) bool {
	if r == nil || r.StatusCode == 0 {
		return false
	}
	if r.StatusCode < 200 || r.StatusCode > 302 {
		return false
	}
	code, present, numeric := r.apiRequestStatus()
	if present && (!numeric || code > 399) {
		return false
	}
	return true
}

// IsValidAsyncResponse reports whether an enqueue or poll response can be
// turned into a job. Redirects are valid; the redirect target is checked
// separately when it is fetched.
func IsValidAsyncResponse(r *Response) bool {
	if !IsValidSyncResponse(r) {
		return false
	}
	if r.IsRedirect() {
		return true
	}
	if _, ok := r.Object("job"); !ok {
		return false
	}
	_, failed := r.jobError()
	return !failed
}

// CleanRequestData returns a copy of r whose StatusCode reflects embedded
// failures: a nested api_request.status_code above 399 replaces it, and a
// non-empty job error forces 500. r is not modified.
func CleanRequestData(r *Response) *Response {
	if r == nil {
		return nil
	}
	out := *r
	if code, present, numeric := r.apiRequestStatus(); present && numeric && code > 399 {
		out.StatusCode = code
	}
	if _, failed := r.jobError(); failed {
		out.StatusCode = http.StatusInternalServerError
	}
	return &out
}

// ErrorFromResponse extracts the server error payload from r.
//
// Sources, first match wins: the job-level error object, an RFC 7807 style
// body (status/title/detail), the legacy api_request.error object, then a
// generic payload built from the status code and raw body.
func ErrorFromResponse(op string, r *Response) *sdkerr.APIError {
	cleaned := CleanRequestData(r)
	if cleaned == nil {
		return sdkerr.NewAPIError(op, sdkerr.ErrorResponse{Status: http.StatusInternalServerError, Title: "No response"})
	}

	if jobErr, failed := cleaned.jobError(); failed {
		payload := DecodeErrorPayload(jobErr)
		if payload.Status == 0 {
			payload.Status = cleaned.StatusCode
		}
		return sdkerr.NewAPIError(op, payload)
	}

	if cleaned.Body != nil && hasProblemKeys(cleaned.Body) {
		payload := DecodeErrorPayload(cleaned.Body)
		if payload.Status == 0 {
			payload.Status = cleaned.StatusCode
		}
		return sdkerr.NewAPIError(op, payload)
	}

	if req, ok := cleaned.Object("api_request"); ok {
		if legacy, ok := req["error"].(map[string]any); ok && len(legacy) > 0 {
			payload := sdkerr.ErrorResponse{Status: cleaned.StatusCode}
			if msg, ok := legacy["message"].(string); ok {
				payload.Title = msg
			}
			if details, ok := legacy["details"].(string); ok {
				payload.Detail = details
			}
			if code, ok := legacy["code"].(string); ok {
				payload.Code = code
			}
			return sdkerr.NewAPIError(op, payload)
		}
	}

	return sdkerr.NewAPIError(op, sdkerr.ErrorResponse{
		Status: cleaned.StatusCode,
		Title:  http.StatusText(cleaned.StatusCode),
		Detail: truncate(strings.TrimSpace(string(cleaned.Raw)), maxDetailBytes),
	})
}

func hasProblemKeys(body map[string]any) bool {
	for _, k := range []string{"title", "detail"} {
		if _, ok := body[k]; ok {
			return true
		}
	}
	return false
}

// DecodeErrorPayload converts a raw error node into an ErrorResponse. A
// non-empty node never decodes to an empty payload: unknown shapes keep their
// JSON text as Detail.
func DecodeErrorPayload(v any) sdkerr.ErrorResponse {
	var payload sdkerr.ErrorResponse
	switch x := v.(type) {
	case nil:
		return payload
	case string:
		payload.Detail = x
		return payload
	case map[string]any:
		if len(x) == 0 {
			return payload
		}
		if b, err := json.Marshal(x); err == nil {
			if err := json.Unmarshal(b, &payload); err != nil {
				payload = sdkerr.ErrorResponse{}
			}
		}
		if payload.Title == "" {
			if t, ok := x["title"].(string); ok {
				payload.Title = t
			}
		}
		if payload.Detail == "" {
			if d, ok := x["detail"].(string); ok {
				payload.Detail = d
			} else if m, ok := x["message"].(string); ok {
				payload.Detail = m
			}
		}
	}
	if payload.IsEmpty() {
		if b, err := json.Marshal(v); err == nil {
			payload.Detail = truncate(string(b), maxDetailBytes)
		}
	}
	return payload
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
