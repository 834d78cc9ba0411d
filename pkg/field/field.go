// Package field turns the schema-less prediction tree returned by the API
// into typed fields.
//
// A raw node is classified once, by structure, into one of three variants:
//
//   - a node with an "items" key is a ListField
//   - a node with a "fields" key is an ObjectField
//   - a node with a "value" key is a SimpleField
//
// When several keys coexist the order above wins (items > fields > value).
// Anything else is a deserialization error.
package field

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// Kind is the variant tag computed from the raw node.
type Kind int

const (
	KindSimple Kind = iota + 1
	KindObject
	KindList
)

// String returns the variant's type name.
func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "SimpleField"
	case KindObject:
		return "ObjectField"
	case KindList:
		return "ListField"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field is implemented by *SimpleField, *ObjectField and *ListField only.
type Field interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Confidence returns the server confidence, ConfidenceUnknown if absent.
	Confidence() Confidence

	// Locations returns the field's page positions. Entries may be nil.
	Locations() []*Location

	// String renders the field for display, indented by its depth.
	String() string

	json.Marshaler

	base() *baseField
}

type baseField struct {
	confidence Confidence
	locations  []*Location
	depth      int
}

func (b *baseField) base() *baseField { return b }

// Confidence returns the server confidence, ConfidenceUnknown if absent.
func (b *baseField) Confidence() Confidence { return b.confidence }

// Locations returns the field's page positions. Entries may be nil.
func (b *baseField) Locations() []*Location { return b.locations }

func (b *baseField) appendMeta(m map[string]any) {
	if b.confidence != ConfidenceUnknown {
		m["confidence"] = b.confidence
	}
	if b.locations != nil {
		m["locations"] = b.locations
	}
}

// SimpleField holds a scalar value.
type SimpleField struct {
	baseField
	value any
}

// Kind implements Field.
func (f *SimpleField) Kind() Kind { return KindSimple }

// Value returns the raw scalar: string, float64, bool or nil.
func (f *SimpleField) Value() any { return f.value }

// StringValue returns the value when it is a string.
func (f *SimpleField) StringValue() (string, bool) {
	s, ok := f.value.(string)
	return s, ok
}

// NumberValue returns the value when it is a number.
func (f *SimpleField) NumberValue() (float64, bool) {
	n, ok := f.value.(float64)
	return n, ok
}

// BoolValue returns the value when it is a boolean.
func (f *SimpleField) BoolValue() (bool, bool) {
	b, ok := f.value.(bool)
	return b, ok
}

// IsNull reports whether the server sent a null value.
func (f *SimpleField) IsNull() bool { return f.value == nil }

// String renders the value.
func (f *SimpleField) String() string {
	return formatValue(f.value)
}

// MarshalJSON encodes the field back into its wire shape.
func (f *SimpleField) MarshalJSON() ([]byte, error) {
	m := map[string]any{"value": f.value}
	f.appendMeta(m)
	return json.Marshal(m)
}

// ObjectField holds named child fields.
type ObjectField struct {
	baseField
	fields *InferenceFields
}

// Kind implements Field.
func (f *ObjectField) Kind() Kind { return KindObject }

// Fields returns the named children.
func (f *ObjectField) Fields() *InferenceFields { return f.fields }

// SimpleFields returns every child as a SimpleField, failing if any is not.
func (f *ObjectField) SimpleFields() (map[string]*SimpleField, error) {
	out := make(map[string]*SimpleField, f.fields.Len())
	for _, name := range f.fields.Names() {
		child, _ := f.fields.Get(name)
		sf, ok := child.(*SimpleField)
		if !ok {
			return nil, narrowError(name, KindSimple, child)
		}
		out[name] = sf
	}
	return out, nil
}

// ObjectFields returns every child as an ObjectField, failing if any is not.
func (f *ObjectField) ObjectFields() (map[string]*ObjectField, error) {
	out := make(map[string]*ObjectField, f.fields.Len())
	for _, name := range f.fields.Names() {
		child, _ := f.fields.Get(name)
		of, ok := child.(*ObjectField)
		if !ok {
			return nil, narrowError(name, KindObject, child)
		}
		out[name] = of
	}
	return out, nil
}

// ListFields returns every child as a ListField, failing if any is not.
func (f *ObjectField) ListFields() (map[string]*ListField, error) {
	out := make(map[string]*ListField, f.fields.Len())
	for _, name := range f.fields.Names() {
		child, _ := f.fields.Get(name)
		lf, ok := child.(*ListField)
		if !ok {
			return nil, narrowError(name, KindList, child)
		}
		out[name] = lf
	}
	return out, nil
}

// String renders the children one per line.
func (f *ObjectField) String() string {
	return f.fields.String()
}

// MarshalJSON encodes the field back into its wire shape.
func (f *ObjectField) MarshalJSON() ([]byte, error) {
	m := map[string]any{"fields": f.fields}
	f.appendMeta(m)
	return json.Marshal(m)
}

// ListField holds an ordered sequence of child fields. Items are usually all
// the same kind but this is not enforced.
type ListField struct {
	baseField
	items []Field
}

// Kind implements Field.
func (f *ListField) Kind() Kind { return KindList }

// Items returns the children in server order.
func (f *ListField) Items() []Field { return f.items }

// Len returns the number of items.
func (f *ListField) Len() int { return len(f.items) }

// SimpleItems returns the items as SimpleFields, failing if any is not.
func (f *ListField) SimpleItems() ([]*SimpleField, error) {
	out := make([]*SimpleField, 0, len(f.items))
	for i, item := range f.items {
		sf, ok := item.(*SimpleField)
		if !ok {
			return nil, narrowError(indexPath("items", i), KindSimple, item)
		}
		out = append(out, sf)
	}
	return out, nil
}

// ObjectItems returns the items as ObjectFields, failing if any is not.
func (f *ListField) ObjectItems() ([]*ObjectField, error) {
	out := make([]*ObjectField, 0, len(f.items))
	for i, item := range f.items {
		of, ok := item.(*ObjectField)
		if !ok {
			return nil, narrowError(indexPath("items", i), KindObject, item)
		}
		out = append(out, of)
	}
	return out, nil
}

// String renders one bullet per item.
func (f *ListField) String() string {
	return renderList(f)
}

// MarshalJSON encodes the field back into its wire shape.
func (f *ListField) MarshalJSON() ([]byte, error) {
	items := f.items
	if items == nil {
		items = []Field{}
	}
	m := map[string]any{"items": items}
	f.appendMeta(m)
	return json.Marshal(m)
}

// Equal reports whether two fields carry the same data. Depth is ignored.
func Equal(a, b Field) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.Confidence() != b.Confidence() {
		return false
	}
	if !reflect.DeepEqual(a.Locations(), b.Locations()) {
		return false
	}
	switch x := a.(type) {
	case *SimpleField:
		return reflect.DeepEqual(x.value, b.(*SimpleField).value)
	case *ObjectField:
		return x.fields.Equal(b.(*ObjectField).fields)
	case *ListField:
		y := b.(*ListField)
		if len(x.items) != len(y.items) {
			return false
		}
		for i := range x.items {
			if !Equal(x.items[i], y.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func narrowError(path string, want Kind, got Field) error {
	return &sdkerr.DeserializationError{
		Message: fmt.Sprintf("expected %s, got %s", want, got.Kind()),
		Path:    path,
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 1, 64)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
