package client

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/goextract/pkg/job"
	"github.com/3leaps/goextract/pkg/sdkerr"
	"github.com/3leaps/goextract/pkg/transport"
)

// InferenceParameters are the per-document options of an enqueue call.
// Nil feature flags are left to the model's defaults.
type InferenceParameters struct {
	// ModelID selects the model. Required.
	ModelID string `yaml:"model_id"`

	// Alias is echoed back on the job and the inference file.
	Alias string `yaml:"alias"`

	// WebhookIDs are notified when the job finishes.
	WebhookIDs []string `yaml:"webhook_ids"`

	RAG        *bool `yaml:"rag"`
	RawText    *bool `yaml:"raw_text"`
	Polygon    *bool `yaml:"polygon"`
	Confidence *bool `yaml:"confidence"`

	// TextContext is free text that guides extraction.
	TextContext string `yaml:"text_context"`

	// DataSchema overrides the model's data schema. It must be a JSON
	// document. Files may give it inline; see ParseParameters.
	DataSchema string `yaml:"-"`

	// CloseFile drops the document bytes from memory once they are encoded.
	CloseFile bool `yaml:"close_file"`

	// PollingOptions overrides the client's polling schedule.
	PollingOptions job.PollingOptions `yaml:"polling"`
}

// Validate checks the parameters without touching the network.
func (p InferenceParameters) Validate() error {
	if p.ModelID == "" {
		return &sdkerr.ConfigurationError{Field: "ModelID", Message: "required"}
	}
	if p.DataSchema != "" && !json.Valid([]byte(p.DataSchema)) {
		return &sdkerr.ConfigurationError{Field: "DataSchema", Message: "must be valid JSON"}
	}
	if !p.PollingOptions.IsZero() {
		if err := p.PollingOptions.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p InferenceParameters) addTo(form *transport.Form) {
	form.Add("model_id", p.ModelID)
	if p.Alias != "" {
		form.Add("alias", p.Alias)
	}
	for _, id := range p.WebhookIDs {
		form.Add("webhook_ids", id)
	}
	addBool(form, "rag", p.RAG)
	addBool(form, "raw_text", p.RawText)
	addBool(form, "polygon", p.Polygon)
	addBool(form, "confidence", p.Confidence)
	if p.TextContext != "" {
		form.Add("text_context", p.TextContext)
	}
	if p.DataSchema != "" {
		form.Add("data_schema", p.DataSchema)
	}
}

func addBool(form *transport.Form, key string, v *bool) {
	if v != nil {
		form.Add(key, strconv.FormatBool(*v))
	}
}

// Bool returns a pointer to v, for the optional feature flags.
func Bool(v bool) *bool {
	return &v
}

// parametersFile is the on-disk shape. data_schema may be written inline as
// a mapping or as a JSON string.
type parametersFile struct {
	InferenceParameters `yaml:",inline"`
	DataSchema          yaml.Node `yaml:"data_schema"`
}

// LoadParameters reads InferenceParameters from a YAML (or JSON) file.
func LoadParameters(path string) (InferenceParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InferenceParameters{}, fmt.Errorf("read parameters: %w", err)
	}
	return ParseParameters(data)
}

// ParseParameters validates YAML (or JSON) bytes against the parameters
// schema and decodes them into InferenceParameters.
func ParseParameters(data []byte) (InferenceParameters, error) {
	if err := validateParametersDocument(data); err != nil {
		return InferenceParameters{}, err
	}

	var f parametersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return InferenceParameters{}, &sdkerr.ConfigurationError{Field: "parameters", Message: err.Error()}
	}
	p := f.InferenceParameters

	switch f.DataSchema.Kind {
	case 0: // absent
	case yaml.ScalarNode:
		p.DataSchema = f.DataSchema.Value
	default:
		var v any
		if err := f.DataSchema.Decode(&v); err != nil {
			return InferenceParameters{}, &sdkerr.ConfigurationError{Field: "DataSchema", Message: err.Error()}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return InferenceParameters{}, &sdkerr.ConfigurationError{Field: "DataSchema", Message: err.Error()}
		}
		p.DataSchema = string(b)
	}

	if err := p.Validate(); err != nil {
		return InferenceParameters{}, err
	}
	return p, nil
}
