package rulestore

import (
	"encoding/json"
	"sort"
	"strconv"
)

// decodeStrings defensively decodes a stored list. Other writers of the
// shared store have been observed persisting lists as JSON objects keyed by
// index, so a non-array value is coerced by taking its values rather than
// rejected. Anything else decodes to ok=false.
func decodeStrings(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, aerr := strconv.Atoi(keys[i])
			b, berr := strconv.Atoi(keys[j])
			if aerr == nil && berr == nil {
				return a < b
			}
			return keys[i] < keys[j]
		})
		out := make([]string, 0, len(obj))
		for _, k := range keys {
			out = append(out, obj[k])
		}
		return out, true
	}

	return nil, false
}

// decodeBool decodes a stored flag, falling back to def when absent or
// malformed. Flags default to enabled.
func decodeBool(raw json.RawMessage, def bool) bool {
	if len(raw) == 0 {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return def
	}
	return b
}

// decodeInt64 decodes a stored integer, falling back to def when absent or
// malformed. Accepts JSON numbers in float form since other writers are not
// guaranteed to emit integers.
func decodeInt64(raw json.RawMessage, def int64) int64 {
	if len(raw) == 0 {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return def
	}
	return int64(f)
}
