package provenance

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the SHA-256 digest of the UTF-8 byte encoding of text,
// rendered as 64 lowercase hexadecimal characters.
//
// The function is pure and total: every string, including the empty string,
// produces a digest. Verification is exact string equality between two
// independently computed digests, so this must match the algorithm used at
// publication time byte for byte.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
