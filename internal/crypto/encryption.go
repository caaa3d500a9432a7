// Package crypto provides the one scoped encryption key the process uses
// to protect custodial key material at rest: an AES-256-GCM box keyed by
// a PBKDF2-HMAC-SHA256 derivation of the operator's secret.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize    = 32     // AES-256 requires 32 bytes
	NonceSize  = 12     // GCM standard nonce size
	SaltSize   = 16     // informational only — the KDF salt below is static
	iterations = 200_000 // PBKDF2 rounds; spec requires >= 100,000
)

// kdfSalt is a static, implementation-chosen salt. It does not need to be
// secret — PBKDF2's cost comes from the iteration count — only stable, so
// the same ENCRYPTION_KEY always derives the same scoped key across
// restarts.
var kdfSalt = []byte("chatpay-core/escrow-key-v1")

// DeriveKey derives the process's scoped AES-256 key from the operator's
// ENCRYPTION_KEY secret via PBKDF2-HMAC-SHA256.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), kdfSalt, iterations, KeySize, sha256.New)
}

// Box encrypts and decrypts custodial secrets with one key derived at
// construction time. It never logs or returns plaintext on error.
type Box struct {
	key []byte
}

// NewBox derives the scoped key from secret and returns a ready Box.
func NewBox(secret string) *Box {
	return &Box{key: DeriveKey(secret)}
}

// Encrypt seals plaintext into a base64 blob (nonce || ciphertext).
func (b *Box) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, b.key)
}

// Decrypt opens a blob produced by Encrypt. Never returns the key or
// includes plaintext in errors.
func (b *Box) Decrypt(blob string) (string, error) {
	return Decrypt(blob, b.key)
}

// Encrypt encrypts plaintext using AES-256-GCM.
// Returns base64-encoded: nonce + ciphertext.
func Encrypt(plaintext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes long")
	}

	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGcm.Seal(nil, nonce, []byte(plaintext), nil)
	result := append(nonce, ciphertext...)

	return base64.StdEncoding.EncodeToString(result), nil
}

// Decrypt decrypts AES-256-GCM encrypted data.
func Decrypt(ciphertext string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", errors.New("encryption key must be 32 bytes long")
	}

	decoded, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	if len(decoded) < NonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce := decoded[:NonceSize]
	cipherData := decoded[NonceSize:]

	aesCipher, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	aesGcm, err := cipher.NewGCM(aesCipher)
	if err != nil {
		return "", err
	}

	plaintext, err := aesGcm.Open(nil, nonce, cipherData, nil)
	if err != nil {
		return "", errors.New("decryption failed: invalid key or corrupted data")
	}

	return string(plaintext), nil
}

// GenerateKey generates a random 32-byte encryption key. Used by tests that
// want a box without going through PBKDF2.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
