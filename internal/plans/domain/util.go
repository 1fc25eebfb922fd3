package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// computeHash computes a SHA256 hash of content.
func computeHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
