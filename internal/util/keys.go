package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the hex sha256 digest of prefix+key. The result is safe to use as a file name
// and its leading character pairs are evenly distributed.
func HashKey(prefix, key string) string {
	sum := sha256.Sum256([]byte(prefix + key))
	return hex.EncodeToString(sum[:])
}
