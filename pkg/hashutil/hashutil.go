package hashutil

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// KeyDigest returns a fixed-width BLAKE3 digest of key, suitable for use as a
// store key when the raw key may be arbitrarily long.
func KeyDigest(key string) string {
	hash := blake3.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
