package usertokens

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken is the lookup key used by persistent stores and caches.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
