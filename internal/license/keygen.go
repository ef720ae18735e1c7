package license

import (
	"crypto/rand"
	"strings"
)

// keyAlphabet excludes characters that read ambiguously on printed keys.
const keyAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	keyGroups    = 4
	keyGroupSize = 4
)

// NewKeyString returns a crypto-random key of the form XXXX-XXXX-XXXX-XXXX.
// Collisions are negligible but the store's unique constraint remains the
// source of truth; callers retry on ErrDuplicateKey.
func NewKeyString() (string, error) {
	raw := make([]byte, keyGroups*keyGroupSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, c := range raw {
		if i > 0 && i%keyGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(keyAlphabet[int(c)%len(keyAlphabet)])
	}
	return b.String(), nil
}
