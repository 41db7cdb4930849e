package util

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken derives a stable digest for a shared secret so comparisons work
// on equal-length inputs.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
