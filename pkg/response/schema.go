package response

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// ErrSchemaNotFound indicates an embedded schema was empty.
var ErrSchemaNotFound = errors.New("response schema not found")

// ValidationError represents a single schema violation.
type ValidationError struct {
	// Path is the JSON pointer to the offending node (e.g., "/inference/result").
	Path string

	// Message describes the violation.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of schema violations.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "response validation failed with %d errors:\n", len(e))
	for i, err := range e {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap makes schema violations match sdkerr.ErrDeserialization.
func (e ValidationErrors) Unwrap() error {
	return sdkerr.ErrDeserialization
}

// SchemaValidator validates decoded bodies against an embedded JSON schema.
// The schema is compiled once on first use.
type SchemaValidator struct {
	name string
	data []byte

	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// NewSchemaValidator returns a validator for the schema document data,
// registered under name.
func NewSchemaValidator(name string, data []byte) *SchemaValidator {
	return &SchemaValidator{name: name, data: data}
}

func (v *SchemaValidator) compiled() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		if len(v.data) == 0 {
			v.err = fmt.Errorf("%w: %s", ErrSchemaNotFound, v.name)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(v.name, bytes.NewReader(v.data)); err != nil {
			v.err = fmt.Errorf("add schema %s: %w", v.name, err)
			return
		}
		v.schema, v.err = compiler.Compile(v.name)
		if v.err != nil {
			v.err = fmt.Errorf("compile schema %s: %w", v.name, v.err)
		}
	})
	return v.schema, v.err
}

// Validate checks a decoded JSON document (as produced by encoding/json into
// any). It returns nil, ValidationErrors, or a compile error.
func (v *SchemaValidator) Validate(doc any) error {
	s, err := v.compiled()
	if err != nil {
		return err
	}
	err = s.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, e := range ve.BasicOutput().Errors {
		if e.Error == "" || strings.HasPrefix(e.Error, "doesn't validate with") {
			continue
		}
		errs = append(errs, ValidationError{Path: e.InstanceLocation, Message: e.Error})
	}
	if len(errs) == 0 {
		errs = ValidationErrors{{Path: ve.InstanceLocation, Message: ve.Message}}
	}
	return errs
}
