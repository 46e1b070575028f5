// Package canon produces the deterministic byte string over which every
// Ed25519 signature in the protocol is computed and verified. Devices and
// the server must agree on this algorithm bit-for-bit, so it deliberately
// has no knobs: drop signature fields, sort keys, render, join.
package canon

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/babur-hussain/toon-fleet-server/internal/toon"
)

// excludedKeys never participate in the canonical form: they are the
// signature fields themselves, or the raw wire bytes the signature was
// computed over.
var excludedKeys = map[string]bool{
	"SIG1":     true,
	"SIG_SERV": true,
	"raw_toon": true,
}

// String renders the canonical byte string for tokens: drop excluded keys,
// sort remaining keys lexicographically by code point, render KEY:VALUE,
// join with "|". Arrays are joined with "|" between elements; nested objects
// render as comma-joined k=v pairs. The result is stable under any
// reordering of tokens or of object members.
func String(tokens []toon.Token) string {
	kept := make(map[string]any, len(tokens))
	for _, t := range tokens {
		if excludedKeys[t.Key] {
			continue
		}
		kept[t.Key] = t.Value
	}

	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + ":" + renderValue(kept[k])
	}
	return strings.Join(pairs, "|")
}

// Of is a convenience wrapper over a decoded payload's tokens.
func Of(p toon.Payload) string {
	return String(p.Tokens)
}

func renderValue(v any) string {
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
		return val
	case []any:
		elems := make([]string, len(val))
		for i, e := range val {
			elems[i] = renderValue(e)
		}
		return strings.Join(elems, "|")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + renderValue(val[k])
		}
		return strings.Join(pairs, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}
