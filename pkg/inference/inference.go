// Package inference models result payloads: the common envelope (model, file,
// job reference) and one typed result per product.
//
// A product is a value pairing the API slug with the parser for its result
// type, so the client can fetch and decode any product through one generic
// path:
//
//	resp, err := client.EnqueueAndGetResult(ctx, c, inference.Extraction, src, params)
//	total, err := resp.Inference.Result.Fields.Simple("total")
package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	schemasassets "github.com/3leaps/goextract/internal/assets/schemas"
	"github.com/3leaps/goextract/pkg/response"
	"github.com/3leaps/goextract/pkg/sdkerr"
)

var envelopeValidator = response.NewSchemaValidator("inference-response.schema.json", schemasassets.InferenceResponseSchema)

// Result is implemented by every product result type.
type Result interface {
	fmt.Stringer
}

// Model identifies the model that produced an inference.
type Model struct {
	ID string `json:"id"`
}

// File describes the submitted document as seen by the server.
type File struct {
	Name      string  `json:"name"`
	Alias     *string `json:"alias"`
	PageCount int     `json:"page_count"`
	MimeType  string  `json:"mime_type"`
}

// JobRef links an inference back to its job.
type JobRef struct {
	ID string `json:"id"`
}

// Inference is a completed prediction for one document.
type Inference[R Result] struct {
	ID     string
	Model  Model
	File   File
	Job    JobRef
	Result R
}

// String renders the inference as a sectioned text report.
func (i *Inference[R]) String() string {
	var b strings.Builder
	b.WriteString("Inference\n#########\n\n")

	b.WriteString("Model\n=====\n")
	fmt.Fprintf(&b, ":ID: %s\n\n", i.Model.ID)

	b.WriteString("File\n====\n")
	fmt.Fprintf(&b, ":Name: %s\n", i.File.Name)
	if i.File.Alias != nil && *i.File.Alias != "" {
		fmt.Fprintf(&b, ":Alias: %s\n", *i.File.Alias)
	} else {
		b.WriteString(":Alias:\n")
	}
	fmt.Fprintf(&b, ":Page Count: %d\n", i.File.PageCount)
	fmt.Fprintf(&b, ":MIME Type: %s\n\n", i.File.MimeType)

	b.WriteString(i.Result.String())
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Response is a parsed result payload. Raw keeps the decoded document for
// callers that need fields this package does not model.
type Response[R Result] struct {
	Inference *Inference[R]
	Raw       map[string]any
}

// Product names an API product and knows how to parse its result.
type Product[R Result] struct {
	// Name is the human-readable product name.
	Name string

	// Slug is the path segment used in API routes.
	Slug string

	parse func(raw map[string]any) (R, error)
}

// NewProduct declares a product. parse receives the decoded
// "inference.result" object.
func NewProduct[R Result](name, slug string, parse func(raw map[string]any) (R, error)) Product[R] {
	return Product[R]{Name: name, Slug: slug, parse: parse}
}

// ParseResponse decodes a raw result payload.
func (p Product[R]) ParseResponse(data []byte) (*Response[R], error) {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "invalid JSON", Err: err}
	}
	return p.ParseBody(body)
}

// ParseBody builds a response from an already decoded payload.
func (p Product[R]) ParseBody(body map[string]any) (*Response[R], error) {
	if body == nil {
		return nil, &sdkerr.DeserializationError{Message: "empty result payload"}
	}
	rawInf, ok := body["inference"]
	if !ok {
		return nil, &sdkerr.DeserializationError{Message: "missing inference key", Node: snippet(body)}
	}
	inf, ok := rawInf.(map[string]any)
	if !ok {
		return nil, &sdkerr.DeserializationError{Message: "inference must be an object", Path: "inference", Node: snippet(rawInf)}
	}
	if err := envelopeValidator.Validate(body); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "result envelope does not match schema", Path: "inference", Err: err}
	}
	if p.parse == nil {
		return nil, &sdkerr.DeserializationError{Message: fmt.Sprintf("product %q has no result parser", p.Slug)}
	}

	out := &Inference[R]{ID: stringOr(inf["id"])}
	if err := remarshal(inf["model"], &out.Model); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "bad model", Path: "inference.model", Err: err}
	}
	if err := remarshal(inf["file"], &out.File); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "bad file", Path: "inference.file", Err: err}
	}
	if err := remarshal(inf["job"], &out.Job); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "bad job", Path: "inference.job", Err: err}
	}

	result, err := p.parse(inf["result"].(map[string]any))
	if err != nil {
		return nil, err
	}
	out.Result = result

	return &Response[R]{Inference: out, Raw: body}, nil
}

// String implements fmt.Stringer.
func (p Product[R]) String() string {
	return p.Name
}

func remarshal(src any, dst any) error {
	if src == nil {
		return nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func snippet(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}
