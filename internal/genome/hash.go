package genome

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// #region content-hash

// ContentHash computes the content-addressed identity of a genome payload:
// sha256 over the canonical JSON encoding, truncated to 16 hex characters.
// Canonicalization round-trips the payload through a map so that key order
// and insignificant whitespace do not change the hash.
func ContentHash(payload json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

// #endregion content-hash

// #region version-id

// versionIDLayout is fixed-width: RFC3339Nano trims trailing zeros, which
// would break lexical ordering when one fractional part is a prefix of
// another.
const versionIDLayout = "2006-01-02T15:04:05.000000000Z"

// NewVersionID mints a lineage-scoped, monotonically orderable version id
// from a creation timestamp.
func NewVersionID(t time.Time) string {
	return t.UTC().Format(versionIDLayout)
}

// #endregion version-id
