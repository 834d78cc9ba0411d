package field

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// InferenceFields maps field names to fields. It is the typed replacement for
// the result's dynamic "fields" object.
type InferenceFields struct {
	fields map[string]Field
	depth  int
}

// NewInferenceFields parses a raw "fields" object. depth only affects rendering.
func NewInferenceFields(raw map[string]any, depth int) (*InferenceFields, error) {
	return newInferenceFields(raw, depth, "", 0)
}

func newInferenceFields(raw map[string]any, depth int, path string, level int) (*InferenceFields, error) {
	fs := &InferenceFields{fields: make(map[string]Field, len(raw)), depth: depth}
	for name, node := range raw {
		f, err := createField(node, depth, joinPath(path, name), level)
		if err != nil {
			return nil, err
		}
		fs.fields[name] = f
	}
	return fs, nil
}

// Len returns the number of fields.
func (fs *InferenceFields) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.fields)
}

// Names returns the field names in lexical order.
func (fs *InferenceFields) Names() []string {
	if fs == nil {
		return nil
	}
	names := make([]string, 0, len(fs.fields))
	for name := range fs.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named field.
func (fs *InferenceFields) Get(name string) (Field, bool) {
	if fs == nil {
		return nil, false
	}
	f, ok := fs.fields[name]
	return f, ok
}

// Simple returns the named field as a SimpleField.
func (fs *InferenceFields) Simple(name string) (*SimpleField, error) {
	f, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}
	sf, ok := f.(*SimpleField)
	if !ok {
		return nil, narrowError(name, KindSimple, f)
	}
	return sf, nil
}

// Object returns the named field as an ObjectField.
func (fs *InferenceFields) Object(name string) (*ObjectField, error) {
	f, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}
	of, ok := f.(*ObjectField)
	if !ok {
		return nil, narrowError(name, KindObject, f)
	}
	return of, nil
}

// List returns the named field as a ListField.
func (fs *InferenceFields) List(name string) (*ListField, error) {
	f, err := fs.lookup(name)
	if err != nil {
		return nil, err
	}
	lf, ok := f.(*ListField)
	if !ok {
		return nil, narrowError(name, KindList, f)
	}
	return lf, nil
}

func (fs *InferenceFields) lookup(name string) (Field, error) {
	f, ok := fs.Get(name)
	if !ok {
		return nil, &sdkerr.DeserializationError{Message: "no such field", Path: name}
	}
	return f, nil
}

// Equal reports whether both maps hold equal fields under the same names.
func (fs *InferenceFields) Equal(other *InferenceFields) bool {
	if fs.Len() != other.Len() {
		return false
	}
	for _, name := range fs.Names() {
		a, _ := fs.Get(name)
		b, ok := other.Get(name)
		if !ok || !Equal(a, b) {
			return false
		}
	}
	return true
}

// String renders one line per field, nested fields indented below their parent.
func (fs *InferenceFields) String() string {
	var b strings.Builder
	for _, name := range fs.Names() {
		f, _ := fs.Get(name)
		writeNamed(&b, name, f)
	}
	return strings.TrimRight(b.String(), "\n")
}

// MarshalJSON encodes the map back into its wire shape.
func (fs *InferenceFields) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(fs.fields)
}
