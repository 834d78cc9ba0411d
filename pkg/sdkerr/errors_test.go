package sdkerr

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds_AreDistinguishable(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"configuration", &ConfigurationError{Field: "APIKey", Message: "required"}, IsConfiguration},
		{"transport", &TransportError{Op: "Poll", Err: errors.New("connection reset")}, IsTransport},
		{"api", NewAPIError("Enqueue", ErrorResponse{Status: 422}), IsAPI},
		{"deserialization", &DeserializationError{Message: "bad node"}, IsDeserialization},
		{"polling timeout", &PollingTimeoutError{JobID: "J1", Attempts: 3}, IsPollingTimeout},
	}

	checks := []func(error) bool{IsConfiguration, IsTransport, IsAPI, IsDeserialization, IsPollingTimeout}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			for j, other := range checks {
				if j == i {
					continue
				}
				assert.False(t, other(wrapped), "kind %d should not match check %d", i, j)
			}
		})
	}
}

func TestTransportError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: no such host")
	err := &TransportError{Op: "Enqueue", URL: "https://api.example.com", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "api.example.com")
}

func TestAPIError_Message(t *testing.T) {
	err := NewAPIError("GetJob", ErrorResponse{
		Status: 404,
		Title:  "Not Found",
		Detail: "job does not exist",
		Code:   "404-001",
	})

	assert.Equal(t, "api GetJob: HTTP 404 (404-001) - Not Found: job does not exist", err.Error())

	var apiErr *APIError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &apiErr))
	assert.Equal(t, 404, apiErr.Status)
}

func TestErrorResponse_IsEmpty(t *testing.T) {
	var nilResp *ErrorResponse
	assert.True(t, nilResp.IsEmpty())
	assert.True(t, (&ErrorResponse{}).IsEmpty())
	assert.False(t, (&ErrorResponse{Detail: "x"}).IsEmpty())
	assert.False(t, (&ErrorResponse{Errors: []ErrorItem{{Detail: "y"}}}).IsEmpty())
}

func TestPollingTimeoutError_Message(t *testing.T) {
	err := &PollingTimeoutError{JobID: "J1", Attempts: 5, MaxWait: 6 * time.Second}
	assert.Equal(t, "job J1 still processing after 5 attempts (max wait 6s)", err.Error())
}
