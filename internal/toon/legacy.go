package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// legacyDelimiters are replaced with "_" on encode; this is the lossy
// escaping Design Note (c) in the spec warns about.
const legacyDelimiters = "|:;,="

// DecodeLegacy parses a single (non-batch) legacy payload: KEY:VALUE pairs
// separated by "|", with heuristic, type-inferring value parsing.
func DecodeLegacy(payload string) (Payload, error) {
	fragments := splitNonEmpty(payload, "|")
	tokens := make([]Token, 0, len(fragments))

	for _, frag := range fragments {
		idx := strings.Index(frag, ":")
		if idx < 0 {
			return Payload{}, fmt.Errorf("%w: token %q has no key/value separator", ErrPayloadCorrupted, frag)
		}
		key := frag[:idx]
		valueStr := frag[idx+1:]
		if key == "" {
			return Payload{}, fmt.Errorf("%w: empty key in token %q", ErrPayloadCorrupted, frag)
		}
		tokens = append(tokens, Token{Key: key, Value: parseLegacyValue(valueStr)})
	}

	return Payload{Tokens: tokens}, nil
}

// parseLegacyValue applies the closed set of heuristics in priority order:
// null, boolean, number, ";"-array, ","-k=v-object, else string.
func parseLegacyValue(s string) any {
	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if numberPattern.MatchString(s) {
		n, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return n
		}
	}

	if strings.Contains(s, ";") {
		parts := strings.Split(s, ";")
		arr := make([]any, len(parts))
		for i, p := range parts {
			arr[i] = parseLegacyValue(p)
		}
		return arr
	}

	if looksLikeObject(s) {
		parts := strings.Split(s, ",")
		obj := make(map[string]any, len(parts))
		for _, p := range parts {
			kv := strings.SplitN(p, "=", 2)
			obj[kv[0]] = parseLegacyValue(kv[1])
		}
		return obj
	}

	return unquote(s)
}

// looksLikeObject reports whether s is a comma-separated sequence of
// non-empty "k=v" pairs, per the legacy object heuristic. A bare "=" with no
// comma is not enough on its own — base64 signature values are routinely
// padded with trailing "=" and must stay strings.
func looksLikeObject(s string) bool {
	if !strings.Contains(s, ",") {
		return false
	}
	parts := strings.Split(s, ",")
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// EncodeLegacy renders a payload back into the legacy KEY:VALUE|KEY:VALUE
// wire shape. String values that would otherwise be misread as null,
// boolean, number, array or object are quoted; string delimiters are
// escaped by replacing them with "_" (lossy, by design — see the typed
// dialect for exact round-trip).
func EncodeLegacy(p Payload) string {
	parts := make([]string, 0, len(p.Tokens))
	for _, t := range p.Tokens {
		parts = append(parts, t.Key+":"+encodeLegacyValue(t.Value))
	}
	return strings.Join(parts, "|")
}

func encodeLegacyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		return encodeLegacyString(val)
	case []any:
		elems := make([]string, len(val))
		for i, e := range val {
			elems[i] = encodeLegacyValue(e)
		}
		return strings.Join(elems, ";")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + encodeLegacyValue(val[k])
		}
		return strings.Join(pairs, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func encodeLegacyString(s string) string {
	escaped := escapeLegacyDelimiters(s)
	if needsQuoting(s) {
		return `"` + escaped + `"`
	}
	return escaped
}

func escapeLegacyDelimiters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(legacyDelimiters, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// needsQuoting reports whether the raw (unescaped) string would be
// misinterpreted as a non-string value by parseLegacyValue if left bare.
func needsQuoting(s string) bool {
	switch s {
	case "null", "true", "false", "":
		return true
	}
	if numberPattern.MatchString(s) {
		return true
	}
	return false
}

func splitNonEmpty(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
