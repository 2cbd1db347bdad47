// Package contenthash computes the exact-duplicate fingerprint shared by the
// ingest pipeline and every storage backend's hash-lookup capability.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes content before hashing: Unicode NFC normalization,
// case folding, and whitespace collapsing. Two memories that differ only by
// capitalization or incidental whitespace normalize to the same string and
// therefore hash identically.
func Normalize(content string) string {
	n := norm.NFC.String(content)
	n = strings.ToLower(n)
	n = strings.Join(strings.FieldsFunc(n, unicode.IsSpace), " ")
	return strings.TrimSpace(n)
}

// Hash returns the 16-byte-truncated-to-hex sha256 digest of the normalized
// content, used as an exact-duplicate fingerprint.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:16])
}
