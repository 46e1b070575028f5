// Package toon implements the TOON wire codec: a plain-text, typed,
// order-independent key/value format used for every request and response
// body in the attendance/fleet protocol. Two dialects share one lexer —
// legacy (untyped, type-inferring, used by devices) and typed (explicit
// TYPE:KEY:VALUE tokens, used by operators) — plus a batch layer that
// concatenates independent payloads with "||".
package toon

import (
	"fmt"
)

// Type is the closed set of TOON value types.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
	TypeObject  Type = "object"
	TypeArray   Type = "array"
)

func (t Type) known() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeNull, TypeObject, TypeArray:
		return true
	}
	return false
}

// Dialect identifies which of the two wire dialects a payload was decoded
// from.
type Dialect int

const (
	DialectLegacy Dialect = iota
	DialectTyped
)

// Token is one top-level key/value pair of a decoded payload. Value holds a
// fully resolved Go value: nil, bool, float64, string, []any, or
// map[string]any.
type Token struct {
	Key   string
	Value any
}

// Payload is an ordered sequence of top-level tokens. Semantic
// interpretation is insensitive to order; the order is preserved only so
// that re-encoding is stable and so batch responses can mirror input order.
type Payload struct {
	Tokens []Token
}

// Get returns the raw value for key and whether it was present.
func (p Payload) Get(key string) (any, bool) {
	for _, t := range p.Tokens {
		if t.Key == key {
			return t.Value, true
		}
	}
	return nil, false
}

// GetString returns the string value for key, or "" if absent or not a
// string.
func (p Payload) GetString(key string) string {
	v, ok := p.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Require returns the string value for key, or an error naming the missing
// token.
func (p Payload) Require(key string) (string, error) {
	v, ok := p.Get(key)
	if !ok {
		return "", fmt.Errorf("missing token: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("token %s is not a scalar string", key)
	}
	return s, nil
}

// GetObject returns the object value for key as a map, if present and of
// object shape.
func (p Payload) GetObject(key string) (map[string]any, bool) {
	v, ok := p.Get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// GetArray returns the array value for key as a []any, if present and of
// array shape.
func (p Payload) GetArray(key string) ([]any, bool) {
	v, ok := p.Get(key)
	if !ok {
		return nil, false
	}
	a, ok := v.([]any)
	return a, ok
}

// MissingRequired reports every key in required that is absent from the
// payload, preserving the order given in required.
func (p Payload) MissingRequired(required ...string) []string {
	missing := make([]string, 0)
	for _, k := range required {
		if _, ok := p.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// ErrPayloadCorrupted is returned for any malformed input; partial results
// are never returned alongside it.
var ErrPayloadCorrupted = fmt.Errorf("payload_corrupted")
