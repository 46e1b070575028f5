package toon_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babur-hussain/toon-fleet-server/internal/toon"
)

func TestDecodeLegacy_ScalarTypes(t *testing.T) {
	p, err := toon.DecodeLegacy("device_id:dev-1|temp:21.5|active:true|note:null")
	require.NoError(t, err)

	assert.Equal(t, "dev-1", p.GetString("device_id"))

	v, ok := p.Get("temp")
	require.True(t, ok)
	assert.Equal(t, 21.5, v)

	v, ok = p.Get("active")
	require.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = p.Get("note")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestDecodeLegacy_ArrayAndObject(t *testing.T) {
	p, err := toon.DecodeLegacy("tags:a;b;c|loc:lat=12.9,lng=77.6")
	require.NoError(t, err)

	v, ok := p.Get("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, v)

	obj, ok := p.GetObject("loc")
	require.True(t, ok)
	assert.Equal(t, 12.9, obj["lat"])
	assert.Equal(t, 77.6, obj["lng"])
}

func TestDecodeLegacy_Base64SignatureStaysString(t *testing.T) {
	// Base64-padded values routinely end in "=" with no comma; they must
	// never be misread through the k=v object heuristic.
	p, err := toon.DecodeLegacy("SIG1:3q2+7zgAAAA=")
	require.NoError(t, err)
	assert.Equal(t, "3q2+7zgAAAA=", p.GetString("SIG1"))
}

func TestDecodeLegacy_MissingSeparatorIsCorrupted(t *testing.T) {
	_, err := toon.DecodeLegacy("not-a-valid-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, toon.ErrPayloadCorrupted)
}

func TestEncodeLegacy_QuotesAmbiguousStrings(t *testing.T) {
	p := toon.Payload{Tokens: []toon.Token{
		{Key: "code", Value: "null"},
		{Key: "serial", Value: "123"},
	}}
	wire := toon.EncodeLegacy(p)
	assert.Contains(t, wire, `code:"null"`)
	assert.Contains(t, wire, `serial:"123"`)
}

// Property S1/Testable-Property-1: round-trip of a legacy payload through
// decode->encode->decode yields an equivalent token set, modulo the string
// escaping of reserved delimiter characters.
func TestLegacyRoundTrip(t *testing.T) {
	original := "device_id:dev-42|event_type:IN|score:0.98|ok:true|meta:null"
	p1, err := toon.DecodeLegacy(original)
	require.NoError(t, err)

	wire := toon.EncodeLegacy(p1)
	p2, err := toon.DecodeLegacy(wire)
	require.NoError(t, err)

	assert.ElementsMatch(t, p1.Tokens, p2.Tokens)
}

func TestDecodeTyped_Scalars(t *testing.T) {
	p, err := toon.DecodeTyped("string:device_id:dev-1|number:temp:21.5|boolean:active:true|null:note:NULL")
	require.NoError(t, err)

	assert.Equal(t, "dev-1", p.GetString("device_id"))

	v, ok := p.Get("temp")
	require.True(t, ok)
	assert.Equal(t, 21.5, v)

	v, ok = p.Get("active")
	require.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = p.Get("note")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestDecodeTyped_NestedObjectAndArray(t *testing.T) {
	payload := "object:location:2|number:location.lat:12.9|number:location.lng:77.6|" +
		"array:tags:2|string:tags[0]:a|string:tags[1]:b"
	p, err := toon.DecodeTyped(payload)
	require.NoError(t, err)

	loc, ok := p.GetObject("location")
	require.True(t, ok)
	assert.Equal(t, 12.9, loc["lat"])
	assert.Equal(t, 77.6, loc["lng"])

	tags, ok := p.GetArray("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, tags)
}

func TestDecodeTyped_ArrayOfObjects(t *testing.T) {
	payload := "array:events:2|" +
		"object:events[0]:1|string:events[0].type:IN|" +
		"object:events[1]:1|string:events[1].type:OUT"
	p, err := toon.DecodeTyped(payload)
	require.NoError(t, err)

	events, ok := p.GetArray("events")
	require.True(t, ok)
	require.Len(t, events, 2)

	first, ok := events[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IN", first["type"])

	second, ok := events[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "OUT", second["type"])
}

func TestTypedRoundTrip(t *testing.T) {
	p1 := toon.Payload{Tokens: []toon.Token{
		{Key: "device_id", Value: "dev-9"},
		{Key: "location", Value: map[string]any{"lat": 1.0, "lng": 2.0}},
		{Key: "tags", Value: []any{"x", "y"}},
	}}
	wire := toon.EncodeTyped(p1)

	p2, err := toon.DecodeTyped(wire)
	require.NoError(t, err)

	loc, ok := p2.GetObject("location")
	require.True(t, ok)
	assert.Equal(t, 1.0, loc["lat"])
	assert.Equal(t, 2.0, loc["lng"])

	v, ok := p2.Get("tags")
	require.True(t, ok)
	assert.Equal(t, []any{"x", "y"}, v)
}

func TestIsTyped(t *testing.T) {
	assert.True(t, toon.IsTyped("string:device_id:dev-1|number:score:0.9"))
	assert.False(t, toon.IsTyped("device_id:dev-1|score:0.9"))
	assert.False(t, toon.IsTyped("bogus:device_id:dev-1"))
}

// S1: a well-formed batch of two legacy fragments decodes to two payloads in
// input order.
func TestDecodeBatch_ValidBatch(t *testing.T) {
	body := "event_id:e1|device_id:dev-1||event_id:e2|device_id:dev-1"
	payloads, err := toon.DecodeBatch(body)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "e1", payloads[0].GetString("event_id"))
	assert.Equal(t, "e2", payloads[1].GetString("event_id"))
}

// S3: a fragment missing a required token still decodes structurally; the
// caller (attestation/ingestion) is responsible for rejecting it — the codec
// itself only rejects malformed wire syntax, never missing business fields.
func TestDecodeBatch_MissingRequiredTokenDecodesButFlagsMissing(t *testing.T) {
	body := "event_id:e1"
	payloads, err := toon.DecodeBatch(body)
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	missing := payloads[0].MissingRequired("device_id", "event_type")
	assert.Equal(t, []string{"device_id", "event_type"}, missing)
}

func TestDecodeBatch_DropsEmptyFragments(t *testing.T) {
	body := "event_id:e1||"
	payloads, err := toon.DecodeBatch(body)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
}

func TestEncodeBatch_MixedDialects(t *testing.T) {
	payloads := []toon.Payload{
		{Tokens: []toon.Token{{Key: "device_id", Value: "dev-1"}}},
		{Tokens: []toon.Token{{Key: "device_id", Value: "dev-2"}}},
	}
	wire := toon.EncodeBatch(payloads, []toon.Dialect{toon.DialectLegacy, toon.DialectTyped})
	assert.Contains(t, wire, "device_id:dev-1")
	assert.Contains(t, wire, "string:device_id:dev-2")
}
