package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Unreadable is rendered in place of any payload that cannot be decrypted.
const Unreadable = "[unreadable message]"

// Encrypt seals the plaintext with AES-256-GCM under key and returns
// base64(nonce || ciphertext || tag). A fresh 96-bit nonce is drawn from the
// system CSPRNG on every call; a nonce is never reused for the same key.
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm mode: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure (malformed encoding, truncated
// payload, wrong key, tag mismatch) yields the Unreadable sentinel instead of
// an error: rendering must never crash on a bad payload.
func Decrypt(encoded string, key []byte) string {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Unreadable
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Unreadable
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Unreadable
	}
	if len(data) < gcm.NonceSize() {
		return Unreadable
	}
	plain, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return Unreadable
	}
	return string(plain)
}
