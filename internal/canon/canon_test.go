package canon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/babur-hussain/toon-fleet-server/internal/canon"
	"github.com/babur-hussain/toon-fleet-server/internal/toon"
)

func TestString_DropsSignatureFields(t *testing.T) {
	tokens := []toon.Token{
		{Key: "A1", Value: "evt-1"},
		{Key: "SIG1", Value: "deadbeef"},
		{Key: "raw_toon", Value: "A1:evt-1|SIG1:deadbeef"},
	}
	assert.Equal(t, "A1:evt-1", canon.String(tokens))
}

// Testable Property 2: canonical determinism under token reordering.
func TestString_DeterministicUnderReordering(t *testing.T) {
	a := []toon.Token{
		{Key: "A2", Value: "IN"},
		{Key: "A1", Value: "evt-1"},
		{Key: "D1", Value: "dev-9"},
	}
	b := []toon.Token{
		{Key: "D1", Value: "dev-9"},
		{Key: "A1", Value: "evt-1"},
		{Key: "A2", Value: "IN"},
	}
	assert.Equal(t, canon.String(a), canon.String(b))
}

func TestString_NestedObjectAndArray(t *testing.T) {
	tokens := []toon.Token{
		{Key: "L1", Value: map[string]any{"lat": 12.9, "lng": 77.6}},
		{Key: "TAGS", Value: []any{"a", "b"}},
	}
	got := canon.String(tokens)
	assert.Equal(t, "L1:lat=12.9,lng=77.6|TAGS:a|b", got)
}

func TestString_ScalarTypes(t *testing.T) {
	tokens := []toon.Token{
		{Key: "N", Value: nil},
		{Key: "B", Value: true},
		{Key: "F", Value: 21.5},
	}
	assert.Equal(t, "B:true|F:21.5|N:null", canon.String(tokens))
}

func TestOf_UsesPayloadTokens(t *testing.T) {
	p, err := toon.DecodeLegacy("A1:evt-1|A2:IN")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "A1:evt-1|A2:IN", canon.Of(p))
}
