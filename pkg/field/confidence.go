package field

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Confidence is the ordinal certainty the server attaches to a field, kept
// as the server's label.
//
// The zero value ConfidenceUnknown means the server sent no confidence. It is
// not a rank: comparing it against anything fails rather than sorting below
// Low. A label outside Low..Certain is kept as-is so the field still parses;
// only comparisons involving it fail.
type Confidence string

const (
	ConfidenceUnknown Confidence = ""
	ConfidenceLow     Confidence = "Low"
	ConfidenceMedium  Confidence = "Medium"
	ConfidenceHigh    Confidence = "High"
	ConfidenceCertain Confidence = "Certain"
)

// ErrUnrankedConfidence is returned when a comparison involves a confidence
// outside the Low..Certain range.
var ErrUnrankedConfidence = errors.New("confidence has no rank")

var confidenceRanks = map[Confidence]int{
	ConfidenceLow:     1,
	ConfidenceMedium:  2,
	ConfidenceHigh:    3,
	ConfidenceCertain: 4,
}

// ParseConfidence maps the server label onto a ranked Confidence. An
// unrecognized label is returned unchanged together with an error wrapping
// ErrUnrankedConfidence.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(s)
	if !c.IsKnown() {
		return c, fmt.Errorf("%w: unknown confidence %q", ErrUnrankedConfidence, s)
	}
	return c, nil
}

// IsKnown reports whether c is one of the four ranked values.
func (c Confidence) IsKnown() bool {
	_, ok := confidenceRanks[c]
	return ok
}

// IsUnrecognized reports a label the server sent that has no rank.
func (c Confidence) IsUnrecognized() bool {
	return c != ConfidenceUnknown && !c.IsKnown()
}

// String returns the server label, or "" for ConfidenceUnknown.
func (c Confidence) String() string {
	return string(c)
}

// Compare returns -1, 0 or +1. Both sides must be ranked.
func (c Confidence) Compare(other Confidence) (int, error) {
	a, ok := confidenceRanks[c]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnrankedConfidence, c.describe())
	}
	b, ok := confidenceRanks[other]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnrankedConfidence, other.describe())
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	default:
		return 0, nil
	}
}

// Less reports c < other.
func (c Confidence) Less(other Confidence) (bool, error) {
	cmp, err := c.Compare(other)
	return cmp < 0, err
}

// Greater reports c > other.
func (c Confidence) Greater(other Confidence) (bool, error) {
	cmp, err := c.Compare(other)
	return cmp > 0, err
}

// AtLeast reports c >= other.
func (c Confidence) AtLeast(other Confidence) (bool, error) {
	cmp, err := c.Compare(other)
	return cmp >= 0, err
}

func (c Confidence) describe() string {
	if c == ConfidenceUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%q", string(c))
}

// MarshalJSON encodes the server label, unrecognized ones included;
// ConfidenceUnknown encodes as null.
func (c Confidence) MarshalJSON() ([]byte, error) {
	if c == ConfidenceUnknown {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// UnmarshalJSON accepts a label or null.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("confidence must be a string: %w", err)
	}
	if s == nil {
		*c = ConfidenceUnknown
		return nil
	}
	*c = Confidence(*s)
	return nil
}

func parseConfidenceNode(raw any) (Confidence, error) {
	if raw == nil {
		return ConfidenceUnknown, nil
	}
	s, ok := raw.(string)
	if !ok {
		return ConfidenceUnknown, fmt.Errorf("confidence must be a string, got %T", raw)
	}
	return Confidence(s), nil
}
