package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashText returns a stable cache key for a piece of learner text. Casing and
// surrounding whitespace do not change the key.
func HashText(input string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(input))))
	return hex.EncodeToString(sum[:16])
}
