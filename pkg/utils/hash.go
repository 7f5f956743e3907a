package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// CacheKey joins parts with a separator that cannot appear in volcano names
// or encoded features and hashes the result.
func CacheKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
