package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// MD5Hex returns the hex digest of the input string.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ContentHash hashes message content for duplicate suppression.
// SHA-256 keeps collisions out of dedup decisions.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
