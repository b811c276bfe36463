package store

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// HashRegistrationToken digests a plaintext registration token for
// storage. The plaintext itself is never written anywhere; the prefix
// makes the stored form self-describing.
func HashRegistrationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("sha256:%x", sum)
}

// tokenDigestMatches compares a stored digest against the digest of a
// presented token in constant time.
func tokenDigestMatches(stored, presented string) bool {
	digest := HashRegistrationToken(presented)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(digest)) == 1
}
