package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint hashes the normalized request body. The body is decoded and
// re-encoded so formatting differences (whitespace, key order) do not
// produce false conflicts; bodies that are not valid JSON are hashed as-is.
func Fingerprint(body []byte) string {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		if normalized, err := json.Marshal(decoded); err == nil {
			body = normalized
		}
	}

	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
