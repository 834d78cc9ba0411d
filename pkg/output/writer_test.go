package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/source"
)

func decodeSingle(t *testing.T, buf *bytes.Buffer, into any) Record {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.NoError(t, json.Unmarshal(record.Data, into))
	return record
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	assert.NotNil(t, w)
	assert.Equal(t, "run-123", w.runID)
	assert.Equal(t, "extraction", w.product)
}

func TestJSONLWriter_WriteInference(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	inf := &InferenceRecord{
		Source:      "inbox/invoice.pdf",
		JobID:       "job-1",
		InferenceID: "inf-1",
		ModelID:     "model-1",
		Filename:    "invoice.pdf",
		Attempts:    2,
		Inference:   map[string]any{"id": "inf-1", "result": map[string]any{"fields": map[string]any{}}},
	}
	require.NoError(t, w.WriteInference(context.Background(), inf))

	var got InferenceRecord
	record := decodeSingle(t, &buf, &got)

	assert.Equal(t, TypeInference, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.Equal(t, "extraction", record.Product)
	assert.False(t, record.TS.IsZero())

	assert.Equal(t, "inbox/invoice.pdf", got.Source)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "inf-1", got.InferenceID)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "inf-1", got.Inference.(map[string]any)["id"])
}

func TestJSONLWriter_WriteJob(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	require.NoError(t, w.WriteJob(context.Background(), &JobRecord{
		Source:   "a.pdf",
		JobID:    "job-9",
		State:    "timed_out",
		Status:   "Processing",
		Attempts: 80,
	}))

	var got JobRecord
	record := decodeSingle(t, &buf, &got)
	assert.Equal(t, TypeJob, record.Type)
	assert.Equal(t, "timed_out", got.State)
	assert.Equal(t, 80, got.Attempts)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	errRec := &ErrorRecord{
		Code:    ErrCodeAccessDenied,
		Message: "access denied to bucket",
		Source:  "s3://docs/secret.pdf",
	}
	require.NoError(t, w.WriteError(context.Background(), errRec))

	var errData ErrorRecord
	record := decodeSingle(t, &buf, &errData)

	assert.Equal(t, TypeError, record.Type)
	assert.Equal(t, ErrCodeAccessDenied, errData.Code)
	assert.Equal(t, "access denied to bucket", errData.Message)
	assert.Equal(t, "s3://docs/secret.pdf", errData.Source)
}

func TestJSONLWriter_WriteSummary(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	sum := &SummaryRecord{
		Documents:     10,
		Succeeded:     7,
		Failed:        2,
		Pending:       1,
		Duration:      30 * time.Second,
		DurationHuman: "30s",
	}
	require.NoError(t, w.WriteSummary(context.Background(), sum))

	var sumData SummaryRecord
	record := decodeSingle(t, &buf, &sumData)

	assert.Equal(t, TypeSummary, record.Type)
	assert.Equal(t, *sum, sumData)
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancelled", fmt.Errorf("%w: %w", sdkerr.ErrCancelled, context.Canceled), ErrCodeCancelled},
		{"timeout", &sdkerr.PollingTimeoutError{JobID: "j", Attempts: 3}, ErrCodeTimeout},
		{"configuration", &sdkerr.ConfigurationError{Field: "APIKey", Message: "required"}, ErrCodeConfiguration},
		{"api", sdkerr.NewAPIError("poll", sdkerr.ErrorResponse{Status: 422}), ErrCodeAPI},
		{"deserialization", &sdkerr.DeserializationError{Message: "bad"}, ErrCodeDeserialization},
		{"transport", &sdkerr.TransportError{Op: "Enqueue", Err: io.ErrUnexpectedEOF}, ErrCodeTransport},
		{"not found", &source.SourceError{Op: "Open", Err: source.ErrNotFound}, ErrCodeNotFound},
		{"access denied", &source.SourceError{Op: "Open", Err: source.ErrAccessDenied}, ErrCodeAccessDenied},
		{"source", &source.SourceError{Op: "Open", Err: source.ErrInvalidSource}, ErrCodeSource},
		{"other", errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeFor(tt.err))
		})
	}
}

func TestNewErrorRecord_APIError(t *testing.T) {
	err := sdkerr.NewAPIError("poll", sdkerr.ErrorResponse{
		Status: 422,
		Title:  "Unprocessable",
		Errors: []sdkerr.ErrorItem{{Pointer: "/file", Detail: "corrupt"}},
	})
	rec := NewErrorRecord("a.pdf", "job-1", err)

	assert.Equal(t, ErrCodeAPI, rec.Code)
	assert.Equal(t, 422, rec.Status)
	assert.Equal(t, "job-1", rec.JobID)
	assert.Equal(t, err.Error(), rec.Message)
	assert.NotNil(t, rec.Details)
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	require.NoError(t, w.WriteInference(context.Background(), &InferenceRecord{JobID: "a"}))
	require.NoError(t, w.WriteInference(context.Background(), &InferenceRecord{JobID: "b"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	for _, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record))
	}
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	require.NoError(t, w.Close())

	err := w.WriteInference(context.Background(), &InferenceRecord{JobID: "a"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)

	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteInference(context.Background(), &InferenceRecord{
					JobID:    fmt.Sprintf("job-%d-%d", writerID, j),
					Attempts: j,
				})
			}
		}(i)
	}

	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)

	for i, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err, "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteInference(ctx, &InferenceRecord{JobID: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "run-123", "extraction")

	err := w.WriteInference(context.Background(), &InferenceRecord{JobID: "a"})
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "write", writeErr.Op)
}

func TestJSONLWriter_MarshalFailure(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "extraction")

	err := w.WriteInference(context.Background(), &InferenceRecord{Inference: make(chan int)})
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "marshal_data", writeErr.Op)
	assert.Empty(t, buf.String())
}

// failingWriter is an io.Writer that always returns an error.
type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "run-123", "extraction")

	require.NoError(t, w.WriteInference(context.Background(), &InferenceRecord{
		Source:      "inbox/invoice.pdf",
		JobID:       "job-1",
		InferenceID: "inf-1",
	}))

	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	assert.Len(t, lines, 1)

	var record Record
	assert.NoError(t, json.Unmarshal([]byte(lines[0]), &record), "output should be valid JSON despite short writes")
	assert.Equal(t, TypeInference, record.Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(&zeroWriteWriter{}, "run-123", "extraction")

	err := w.WriteInference(context.Background(), &InferenceRecord{JobID: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

// shortWriteWriter writes at most bytesPerWrite bytes per call, returning nil error.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := len(p)
	if toWrite > sw.bytesPerWrite {
		toWrite = sw.bytesPerWrite
	}
	return sw.buf.Write(p[:toWrite])
}

// zeroWriteWriter always returns 0 bytes written with nil error.
type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestRecord_JSONSerialization(t *testing.T) {
	record := Record{
		Type:    TypeInference,
		TS:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		RunID:   "abc123",
		Product: "extraction",
		Data:    json.RawMessage(`{"job_id":"j1"}`),
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, TypeInference, parsed["type"])
	assert.Equal(t, "abc123", parsed["run_id"])
	assert.Equal(t, "extraction", parsed["product"])
	assert.NotNil(t, parsed["ts"])
	assert.NotNil(t, parsed["data"])
}

func TestErrorRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorRecord{Code: ErrCodeInternal, Message: "boom"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "job_id")
	assert.NotContains(t, string(data), "status")
	assert.NotContains(t, string(data), "details")
}
