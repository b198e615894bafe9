// Package encryption derives per-conversation keys and seals message bodies.
// Both ends derive the same key from public usernames, so the scheme is
// obfuscation of the raw store, not confidentiality against anyone who knows
// the participants.
package encryption

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySalt           = "chat:salt"
	publicKeyMaterial = "public:messages:key"
	pbkdf2Iterations  = 100_000
	keyLength         = 32
)

// DeriveKey maps a conversation identity to a 256-bit AES key. The two
// usernames are canonicalized by lexicographic sort, so
// DeriveKey(a, b) == DeriveKey(b, a). An empty recipient selects the shared
// public-channel key. Pure: no I/O, no randomness.
func DeriveKey(sender, recipient string) []byte {
	material := publicKeyMaterial
	if recipient != "" {
		a, b := sender, recipient
		if b < a {
			a, b = b, a
		}
		material = a + ":" + b + ":private"
	}
	return pbkdf2.Key([]byte(material), []byte(keySalt), pbkdf2Iterations, keyLength, sha256.New)
}
