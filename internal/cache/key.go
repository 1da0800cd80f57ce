package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// KeyNamespace prefixes every cache key so entries never collide with
// unrelated data sharing the same backend. Existing deployments have live
// entries under this prefix, so it must not change.
const KeyNamespace = "ollama_cache:"

// Key derives a deterministic cache key from a JSON request payload.
// The payload is re-serialized in canonical form (object keys sorted,
// recursively) before digesting, so two structurally equal payloads yield
// the same key regardless of field order. MD5 is fine here: the digest
// addresses cache entries, it is not a security boundary.
func Key(payload []byte) string {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		// Not JSON; digest the raw bytes so the function stays total.
		sum := md5.Sum(payload)
		return KeyNamespace + hex.EncodeToString(sum[:])
	}

	var buf bytes.Buffer
	writeCanonical(&buf, v)
	sum := md5.Sum(buf.Bytes())
	return KeyNamespace + hex.EncodeToString(sum[:])
}

// writeCanonical serializes v as JSON with object keys in sorted order.
// Values decoded by encoding/json (bool, float64, string, nil, []any,
// map[string]any) re-encode deterministically via json.Marshal.
func writeCanonical(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, t[k])
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	default:
		b, _ := json.Marshal(t)
		buf.Write(b)
	}
}
