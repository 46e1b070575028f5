package toon

import "strings"

// DecodeBatch splits a wire body on "||" into independent fragments, drops
// any empty fragments produced by a trailing/doubled separator, and decodes
// each fragment with whichever dialect its own tokens indicate. A
// single-fragment body (no "||" present) decodes to a one-element batch.
func DecodeBatch(body string) ([]Payload, error) {
	fragments := splitNonEmpty(body, "||")
	payloads := make([]Payload, 0, len(fragments))
	for _, frag := range fragments {
		p, err := Decode(frag)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, nil
}

// Decode auto-detects the dialect of a single (non-batch) fragment and
// decodes it: typed iff every non-empty token has at least three
// colon-separated parts and the first part names a known type, legacy
// otherwise.
func Decode(fragment string) (Payload, error) {
	if IsTyped(fragment) {
		return DecodeTyped(fragment)
	}
	return DecodeLegacy(fragment)
}

// EncodeBatch renders each payload with its own dialect and joins the
// fragments with "||", preserving input order.
func EncodeBatch(payloads []Payload, dialects []Dialect) string {
	parts := make([]string, len(payloads))
	for i, p := range payloads {
		d := DialectLegacy
		if i < len(dialects) {
			d = dialects[i]
		}
		parts[i] = Encode(p, d)
	}
	return strings.Join(parts, "||")
}

// Encode renders a single payload in the given dialect.
func Encode(p Payload, d Dialect) string {
	if d == DialectTyped {
		return EncodeTyped(p)
	}
	return EncodeLegacy(p)
}
