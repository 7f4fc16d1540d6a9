package classify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// SourceHash computes the 64-hex SHA-256 idempotency key for an event:
// a canonical serialization of {type, properties} with all object keys
// recursively sorted lexicographically. Array order is preserved.
// Logically equivalent events must hash identically, so the
// canonicalization is deliberately independent of the concrete Go types
// passed in (map[string]string vs map[string]any, int vs float64, ...):
// the payload is round-tripped through encoding/json first to normalize
// it to the same shape regardless of how the caller built it.
func SourceHash(eventType string, properties map[string]any) string {
	raw, err := json.Marshal(map[string]any{
		"type":       eventType,
		"properties": properties,
	})
	if err != nil {
		// Marshal only fails for unsupported types (channels, funcs, cyclic
		// structures); fall back to a stable hash over the event type alone
		// so SourceHash itself never panics or errors (classifier totality).
		raw = []byte(fmt.Sprintf(`{"type":%q,"properties":null}`, eventType))
	}

	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		normalized = nil
	}

	sum := sha256.Sum256(canonicalize(normalized))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders v as JSON with every object's keys sorted
// recursively. Array element order is preserved.
func canonicalize(v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(canonicalize(val[k]))
		}
		buf.WriteByte('}')
		return buf.Bytes()
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(canonicalize(e))
		}
		buf.WriteByte(']')
		return buf.Bytes()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return []byte("null")
		}
		return b
	}
}
