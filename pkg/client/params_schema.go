package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/3leaps/goextract/internal/assets/schemas"
	"github.com/3leaps/goextract/pkg/sdkerr"
)

var (
	paramsValidatorOnce sync.Once
	paramsValidator     *schema.Validator
	paramsValidatorErr  error
)

func getParamsValidator() (*schema.Validator, error) {
	paramsValidatorOnce.Do(func() {
		if len(schemasassets.InferenceParametersSchema) == 0 {
			paramsValidatorErr = fmt.Errorf("embedded inference-parameters schema is empty")
			return
		}
		paramsValidator, paramsValidatorErr = schema.NewValidator(schemasassets.InferenceParametersSchema)
		if paramsValidatorErr != nil {
			paramsValidatorErr = fmt.Errorf("compile inference-parameters schema: %w", paramsValidatorErr)
		}
	})
	return paramsValidator, paramsValidatorErr
}

// validateParametersDocument checks a YAML or JSON parameters document
// against the embedded schema before it is decoded into a struct, so
// unknown keys and wrong types are reported with their JSON pointer.
func validateParametersDocument(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &sdkerr.ConfigurationError{Field: "parameters", Message: err.Error()}
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return &sdkerr.ConfigurationError{Field: "parameters", Message: err.Error()}
	}

	v, err := getParamsValidator()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return &sdkerr.ConfigurationError{Field: "parameters", Message: err.Error()}
	}

	var msgs []string
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		if d.Pointer == "" {
			msgs = append(msgs, d.Message)
		} else {
			msgs = append(msgs, d.Pointer+": "+d.Message)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return &sdkerr.ConfigurationError{Field: "parameters", Message: strings.Join(msgs, "; ")}
}
