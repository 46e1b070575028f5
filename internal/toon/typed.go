package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var pathSegmentPattern = regexp.MustCompile(`^([A-Za-z0-9_]*)((?:\[\d+\])*)$`)
var bracketIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

type pathSegment struct {
	name    string
	indices []int
}

func parseKeyPath(key string) ([]pathSegment, error) {
	dotParts := strings.Split(key, ".")
	segments := make([]pathSegment, 0, len(dotParts))
	for _, part := range dotParts {
		m := pathSegmentPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("%w: malformed key path segment %q", ErrPayloadCorrupted, part)
		}
		seg := pathSegment{name: m[1]}
		if m[2] != "" {
			for _, idxMatch := range bracketIndexPattern.FindAllStringSubmatch(m[2], -1) {
				n, err := strconv.Atoi(idxMatch[1])
				if err != nil {
					return nil, fmt.Errorf("%w: bad index in %q", ErrPayloadCorrupted, part)
				}
				seg.indices = append(seg.indices, n)
			}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// rawTypedToken is one decoded TYPE:KEY:VALUE token prior to path
// reconstruction.
type rawTypedToken struct {
	Type  Type
	Key   string
	Value string
}

// IsTyped reports whether payload is in the typed dialect: every non-empty
// token must have at least 3 colon-separated parts and the first part must
// be a known type.
func IsTyped(payload string) bool {
	fragments := splitNonEmpty(payload, "|")
	if len(fragments) == 0 {
		return false
	}
	for _, frag := range fragments {
		parts := strings.SplitN(frag, ":", 3)
		if len(parts) < 3 {
			return false
		}
		if !Type(parts[0]).known() {
			return false
		}
	}
	return true
}

// DecodeTyped parses a single (non-batch) typed payload: TYPE:KEY:VALUE
// tokens, with dotted/bracketed keys reconstructing nested object/array
// graphs.
func DecodeTyped(payload string) (Payload, error) {
	fragments := splitNonEmpty(payload, "|")
	raws := make([]rawTypedToken, 0, len(fragments))

	for _, frag := range fragments {
		parts := strings.SplitN(frag, ":", 3)
		if len(parts) < 3 {
			return Payload{}, fmt.Errorf("%w: token %q is not typed", ErrPayloadCorrupted, frag)
		}
		typ := Type(parts[0])
		if !typ.known() {
			return Payload{}, fmt.Errorf("%w: unknown type %q", ErrPayloadCorrupted, parts[0])
		}
		raws = append(raws, rawTypedToken{Type: typ, Key: parts[1], Value: parts[2]})
	}

	root := map[string]any{}
	order := make([]string, 0)
	seen := map[string]bool{}
	noteTop := func(key string) {
		segs, err := parseKeyPath(key)
		if err != nil || len(segs) == 0 {
			return
		}
		top := segs[0].name
		if !seen[top] {
			seen[top] = true
			order = append(order, top)
		}
	}

	// Pass 1: create containers for every object/array header token. Existing
	// containers are left alone so a parent header processed before a child
	// header never clobbers what the child already populated.
	for _, raw := range raws {
		noteTop(raw.Key)
		segs, err := parseKeyPath(raw.Key)
		if err != nil {
			return Payload{}, err
		}
		switch raw.Type {
		case TypeObject:
			if err := ensureAtPath(root, segs, map[string]any{}); err != nil {
				return Payload{}, err
			}
		case TypeArray:
			if err := ensureAtPath(root, segs, []any{}); err != nil {
				return Payload{}, err
			}
		}
	}

	// Pass 2: set every leaf scalar value.
	for _, raw := range raws {
		if raw.Type == TypeObject || raw.Type == TypeArray {
			continue
		}
		segs, err := parseKeyPath(raw.Key)
		if err != nil {
			return Payload{}, err
		}
		val, err := decodeTypedScalar(raw.Type, raw.Value)
		if err != nil {
			return Payload{}, err
		}
		if err := setAtPath(root, segs, val); err != nil {
			return Payload{}, err
		}
	}

	tokens := make([]Token, 0, len(order))
	for _, k := range order {
		tokens = append(tokens, Token{Key: k, Value: root[k]})
	}
	return Payload{Tokens: tokens}, nil
}

func decodeTypedScalar(typ Type, raw string) (any, error) {
	switch typ {
	case TypeNull:
		return nil, nil
	case TypeString:
		return raw, nil
	case TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrPayloadCorrupted, raw)
		}
		return n, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad boolean %q", ErrPayloadCorrupted, raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a scalar type", ErrPayloadCorrupted, typ)
	}
}

// setAtPath walks segs from root, auto-vivifying intermediate maps/slices,
// and assigns value at the final segment.
func setAtPath(root map[string]any, segs []pathSegment, value any) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", ErrPayloadCorrupted)
	}
	return setInMap(root, segs, value)
}

// ensureAtPath is setAtPath for container headers: it leaves an existing
// value at the target path untouched instead of overwriting it, so a parent
// header token never clobbers a child already populated by an earlier token.
func ensureAtPath(root map[string]any, segs []pathSegment, empty any) error {
	if len(segs) == 0 {
		return fmt.Errorf("%w: empty path", ErrPayloadCorrupted)
	}
	return ensureInMap(root, segs, empty)
}

func setInMap(m map[string]any, segs []pathSegment, value any) error {
	seg := segs[0]
	rest := segs[1:]

	if len(seg.indices) == 0 {
		if len(rest) == 0 {
			m[seg.name] = value
			return nil
		}
		next, ok := m[seg.name].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg.name] = next
		}
		return setInMap(next, rest, value)
	}

	arr, _ := m[seg.name].([]any)
	newArr, err := setInArray(arr, seg.indices, rest, value)
	if err != nil {
		return err
	}
	m[seg.name] = newArr
	return nil
}

func setInArray(arr []any, indices []int, rest []pathSegment, value any) ([]any, error) {
	idx := indices[0]
	arr = growArray(arr, idx)

	if len(indices) > 1 {
		child, _ := arr[idx].([]any)
		newChild, err := setInArray(child, indices[1:], rest, value)
		if err != nil {
			return nil, err
		}
		arr[idx] = newChild
		return arr, nil
	}

	if len(rest) == 0 {
		arr[idx] = value
		return arr, nil
	}
	next, ok := arr[idx].(map[string]any)
	if !ok {
		next = map[string]any{}
	}
	if err := setInMap(next, rest, value); err != nil {
		return nil, err
	}
	arr[idx] = next
	return arr, nil
}

func ensureInMap(m map[string]any, segs []pathSegment, empty any) error {
	seg := segs[0]
	rest := segs[1:]

	if len(seg.indices) == 0 {
		if len(rest) == 0 {
			if _, exists := m[seg.name]; !exists {
				m[seg.name] = empty
			}
			return nil
		}
		next, ok := m[seg.name].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg.name] = next
		}
		return ensureInMap(next, rest, empty)
	}

	arr, _ := m[seg.name].([]any)
	newArr, err := ensureInArray(arr, seg.indices, rest, empty)
	if err != nil {
		return err
	}
	m[seg.name] = newArr
	return nil
}

func ensureInArray(arr []any, indices []int, rest []pathSegment, empty any) ([]any, error) {
	idx := indices[0]
	arr = growArray(arr, idx)

	if len(indices) > 1 {
		child, _ := arr[idx].([]any)
		newChild, err := ensureInArray(child, indices[1:], rest, empty)
		if err != nil {
			return nil, err
		}
		arr[idx] = newChild
		return arr, nil
	}

	if len(rest) == 0 {
		if arr[idx] == nil {
			arr[idx] = empty
		}
		return arr, nil
	}
	next, ok := arr[idx].(map[string]any)
	if !ok {
		next = map[string]any{}
	}
	if err := ensureInMap(next, rest, empty); err != nil {
		return nil, err
	}
	arr[idx] = next
	return arr, nil
}

func growArray(arr []any, idx int) []any {
	for len(arr) <= idx {
		arr = append(arr, nil)
	}
	return arr
}

// EncodeTyped walks each top-level token's value depth-first, emitting one
// object/array header token per composite (value slot = member count)
// followed by leaf tokens, joined with "|".
func EncodeTyped(p Payload) string {
	var out []string
	for _, t := range p.Tokens {
		encodeTypedValue(t.Key, t.Value, &out)
	}
	return strings.Join(out, "|")
}

func encodeTypedValue(path string, v any, out *[]string) {
	switch val := v.(type) {
	case nil:
		*out = append(*out, "null:"+path+":NULL")
	case string:
		*out = append(*out, "string:"+path+":"+val)
	case bool:
		*out = append(*out, "boolean:"+path+":"+strconv.FormatBool(val))
	case float64:
		*out = append(*out, "number:"+path+":"+strconv.FormatFloat(val, 'f', -1, 64))
	case int:
		*out = append(*out, "number:"+path+":"+strconv.Itoa(val))
	case int64:
		*out = append(*out, "number:"+path+":"+strconv.FormatInt(val, 10))
	case map[string]any:
		*out = append(*out, "object:"+path+":"+strconv.Itoa(len(val)))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encodeTypedValue(path+"."+k, val[k], out)
		}
	case []any:
		*out = append(*out, "array:"+path+":"+strconv.Itoa(len(val)))
		for i, e := range val {
			encodeTypedValue(fmt.Sprintf("%s[%d]", path, i), e, out)
		}
	default:
		*out = append(*out, "string:"+path+":"+fmt.Sprintf("%v", val))
	}
}
