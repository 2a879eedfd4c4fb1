package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Token decoding errors.
var (
	ErrUnknownTier  = errors.Base("unknown tier")
	ErrInvalidValue = errors.Base("token value must be a string or number")
)

// Tier classifies how a token's value is authored
type Tier string

const (
	TierPrimitive Tier = "primitive" // Value authored directly
	TierSemantic  Tier = "semantic"  // Value is a reference to another token
)

// ParseTier parses a tier name, case-insensitively
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPrimitive:
		return TierPrimitive, nil
	case TierSemantic:
		return TierSemantic, nil
	}
	return "", errors.Errorf("%w: %q", ErrUnknownTier, s)
}

// ValueKind identifies which scalar a Value holds
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueString
	ValueNumber
)

// Value is a token value: either a string or a number
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

// StringValue creates a string value
func StringValue(s string) Value {
	return Value{kind: ValueString, str: s}
}

// NumberValue creates a numeric value
func NumberValue(n float64) Value {
	return Value{kind: ValueNumber, num: n}
}

// Kind returns the value kind
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether no value was set
func (v Value) IsZero() bool { return v.kind == ValueNone }

// Number returns the numeric value, if the value is a number
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == ValueNumber
}

// String renders the value the way it appears in source
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

// Equal reports whether two values hold the same scalar
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.str == o.str && v.num == o.num
}

// MarshalJSON encodes the value as a JSON string or number
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueString:
		return json.Marshal(v.str)
	case ValueNumber:
		return json.Marshal(v.num)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a JSON string, number or null
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}

	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
	case float64:
		*v = NumberValue(x)
	default:
		return errors.Errorf("%w, got %s", ErrInvalidValue, data)
	}
	return nil
}

// MarshalYAML encodes the value as a YAML scalar
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case ValueString:
		return v.str, nil
	case ValueNumber:
		return v.num, nil
	}
	return nil, nil
}

// Token is a single named design value
type Token struct {
	Value         Value  `json:"value"`                   // Authored value (semantic tokens keep their alias text)
	Type          string `json:"type,omitempty"`          // Free-form type hint (color, dimension, ...)
	Description   string `json:"description,omitempty"`   // Human-readable description
	Tier          Tier   `json:"tier"`                    // primitive or semantic
	Reference     string `json:"reference,omitempty"`     // Target path (semantic only)
	ResolvedValue *Value `json:"resolvedValue,omitempty"` // Derived terminal primitive value (semantic only)

	// DroppedReference is a reference authored on a primitive token. It is
	// ignored for resolution but written back when the source is rewritten.
	DroppedReference string `json:"-"`
}

// IsSemantic reports whether the token is a semantic alias
func (t Token) IsSemantic() bool { return t.Tier == TierSemantic }

// TokenMap is the flat path -> token index
type TokenMap map[string]Token

// Clone returns a shallow copy of the map
func (m TokenMap) Clone() TokenMap {
	out := make(TokenMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Meta summarises a token map
type Meta struct {
	TokenCount     int `json:"tokenCount"`
	PrimitiveCount int `json:"primitiveCount"`
	SemanticCount  int `json:"semanticCount"`
}

// Meta counts tokens per tier
func (m TokenMap) Meta() Meta {
	meta := Meta{TokenCount: len(m)}
	for _, t := range m {
		if t.IsSemantic() {
			meta.SemanticCount++
		} else {
			meta.PrimitiveCount++
		}
	}
	return meta
}
