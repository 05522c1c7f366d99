package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey hashes its parts into a fixed-length key. Parts are joined with a
// separator that cannot appear in normalized text.
func CacheKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}
