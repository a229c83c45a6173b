package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
)

// Cache keys must be deterministic: hashing always goes through a stable
// serialization so the same logical request can never drift to a different
// key between processes.

// HashBytes returns the hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashJSON hashes the canonical JSON encoding of v. encoding/json emits map
// keys in sorted order, so equal values always produce equal digests.
func HashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Non-encodable argument shapes should not happen; keep the key
		// deterministic anyway.
		return HashBytes([]byte(err.Error()))
	}
	return HashBytes(data)
}

// HashQuery hashes URL query parameters. Values.Encode sorts by key.
func HashQuery(params url.Values) string {
	return HashBytes([]byte(params.Encode()))
}
