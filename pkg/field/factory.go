package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/3leaps/goextract/pkg/sdkerr"
)

// MaxDepth bounds field nesting. Real payloads stay within a handful of
// levels; anything deeper is rejected instead of recursing without limit.
const MaxDepth = 64

// ErrMaxDepthExceeded is wrapped by the DeserializationError returned for
// over-nested input.
var ErrMaxDepthExceeded = errors.New("field nesting exceeds maximum depth")

const maxNodeSnippet = 200

// CreateField classifies a decoded JSON node and builds the matching field.
//
// raw must be a JSON object (map[string]any as produced by encoding/json).
// depth is the display indentation level of the new field.
func CreateField(raw any, depth int) (Field, error) {
	return createField(raw, depth, "", 0)
}

// ParseField decodes a JSON document holding a single field node.
func ParseField(data []byte) (Field, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &sdkerr.DeserializationError{Message: "invalid JSON", Err: err}
	}
	return CreateField(raw, 0)
}

// createField tracks level separately from depth so the nesting limit does
// not depend on the caller's starting indentation.
func createField(raw any, depth int, path string, level int) (Field, error) {
	if level > MaxDepth {
		return nil, &sdkerr.DeserializationError{
			Message: fmt.Sprintf("nesting deeper than %d levels", MaxDepth),
			Path:    path,
			Err:     ErrMaxDepthExceeded,
		}
	}

	node, ok := raw.(map[string]any)
	if !ok || node == nil {
		return nil, nodeError(path, fmt.Sprintf("field node must be a JSON object, got %s", jsonKind(raw)), raw)
	}

	meta, err := parseMeta(node, depth, path)
	if err != nil {
		return nil, err
	}

	if rawItems, ok := node["items"]; ok {
		items, ok := rawItems.([]any)
		if !ok {
			return nil, nodeError(joinPath(path, "items"), fmt.Sprintf("items must be an array, got %s", jsonKind(rawItems)), node)
		}
		lf := &ListField{baseField: meta, items: make([]Field, 0, len(items))}
		for i, item := range items {
			child, err := createField(item, depth+1, indexPath(joinPath(path, "items"), i), level+1)
			if err != nil {
				return nil, err
			}
			lf.items = append(lf.items, child)
		}
		return lf, nil
	}

	if rawFields, ok := node["fields"]; ok {
		children, ok := rawFields.(map[string]any)
		if !ok {
			return nil, nodeError(joinPath(path, "fields"), fmt.Sprintf("fields must be an object, got %s", jsonKind(rawFields)), node)
		}
		fs, err := newInferenceFields(children, depth+1, joinPath(path, "fields"), level+1)
		if err != nil {
			return nil, err
		}
		return &ObjectField{baseField: meta, fields: fs}, nil
	}

	if value, ok := node["value"]; ok {
		switch value.(type) {
		case nil, string, float64, bool:
		default:
			return nil, nodeError(joinPath(path, "value"), fmt.Sprintf("value must be a scalar, got %s", jsonKind(value)), node)
		}
		return &SimpleField{baseField: meta, value: value}, nil
	}

	return nil, nodeError(path, "unrecognized field node, expected one of items, fields or value", node)
}

func parseMeta(node map[string]any, depth int, path string) (baseField, error) {
	meta := baseField{depth: depth}

	conf, err := parseConfidenceNode(node["confidence"])
	if err != nil {
		return meta, &sdkerr.DeserializationError{Message: err.Error(), Path: joinPath(path, "confidence")}
	}
	meta.confidence = conf

	locs, err := parseLocations(node["locations"])
	if err != nil {
		return meta, &sdkerr.DeserializationError{Message: err.Error(), Path: joinPath(path, "locations")}
	}
	meta.locations = locs

	return meta, nil
}

func nodeError(path, msg string, node any) error {
	return &sdkerr.DeserializationError{Message: msg, Path: path, Node: snippet(node)}
}

func snippet(node any) string {
	b, err := json.Marshal(node)
	if err != nil {
		return fmt.Sprintf("%v", node)
	}
	if len(b) > maxNodeSnippet {
		return string(b[:maxNodeSnippet]) + "..."
	}
	return string(b)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
