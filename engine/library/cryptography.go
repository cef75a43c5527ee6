package library

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeterministicID derives a stable ID from its parts, so the same inputs always name the same row.
func DeterministicID(parts ...string) Sha256 {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{':'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
