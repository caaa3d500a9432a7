package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncryptDecrypt tests basic encryption and decryption
func TestEncryptDecrypt(t *testing.T) {
	// Build a fixed, deterministic key
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i) // Simple test key
	}

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"Simple text", "hello world"},
		{"Empty string", ""},
		{"Long text", strings.Repeat("a", 1000)},
		{"Special chars", "!@#$%^&*()_+-={}[]|\\:;\"'<>,.?/"},
		{"Bitcoin key", "L3fKPqKvGPZxVvGFm8YqXb7kNmXvHwgPqR2rRnVdKLqX9Yt3Qw2M"},
		{"Unicode", "Hello 世界 🌍"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Encrypt
			encrypted, err := Encrypt(tc.plaintext, key)
			require.NoError(t, err, "Encryption should succeed")
			assert.NotEmpty(t, encrypted, "Encrypted text should not be empty")
			assert.NotEqual(t, encrypted, tc.plaintext, "Encrypted text should differ from plaintext")

			// Decrypt
			decrypted, err := Decrypt(encrypted, key)
			require.NoError(t, err, "Decryption should succeed")

			assert.Equal(t, tc.plaintext, decrypted, "Decrypted text should match original plaintext")
		})
	}
}

// TestEncryptDifferentOutputs tests that same plaintext produces different ciphertexts
func TestEncryptDifferentOutputs(t *testing.T) {
	key := make([]byte, KeySize)
	plaintext := "same plaintext"

	// Encrypt same text multiple times
	encrypted1, _ := Encrypt(plaintext, key)
	encrypted2, _ := Encrypt(plaintext, key)
	encrypted3, _ := Encrypt(plaintext, key)

	// All should be different (due to random nonce)
	assert.NotEqual(t, encrypted1, encrypted2, "Multiple encryptions should produce different ciphertexts")
	assert.NotEqual(t, encrypted1, encrypted3, "Multiple encryptions should produce different ciphertexts")
	assert.NotEqual(t, encrypted2, encrypted3, "Multiple encryptions should produce different ciphertexts")

	// But all should decrypt to same plaintext
	dec1, _ := Decrypt(encrypted1, key)
	dec2, _ := Decrypt(encrypted2, key)
	dec3, _ := Decrypt(encrypted3, key)

	if dec1 != plaintext || dec2 != plaintext || dec3 != plaintext {
		t.Fatal("Decryption failed for multiple encryptions")
	}
}

// TestDecryptWithWrongKey tests decryption with wrong key fails
func TestDecryptWithWrongKey(t *testing.T) {
	key1 := make([]byte, KeySize)
	key2 := make([]byte, KeySize)
	key2[0] = 1 // Different key

	plaintext := "secret message"

	// Encrypt with key1
	encrypted, err := Encrypt(plaintext, key1)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	// Try to decrypt with key2 (wrong key)
	_, err = Decrypt(encrypted, key2)
	if err == nil {
		t.Fatal("Decryption should fail with wrong key")
	}

	// Error message should indicate failure
	if !strings.Contains(err.Error(), "decryption failed") {
		t.Fatalf("Expected 'decryption failed' error, got: %v", err)
	}
}

// TestEncryptWithInvalidKey tests encryption with invalid key size
func TestEncryptWithInvalidKey(t *testing.T) {
	testCases := []struct {
		name    string
		keySize int
	}{
		{"Too short", 16},
		{"Too long", 64},
		{"Empty", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			invalidKey := make([]byte, tc.keySize)
			_, err := Encrypt("test", invalidKey)
			if err == nil {
				t.Fatal("Encryption should fail with invalid key size")
			}
			if !strings.Contains(err.Error(), "32 bytes") {
				t.Fatalf("Error should mention 32 bytes, got: %v", err)
			}
		})
	}
}

// TestDecryptWithInvalidKey tests decryption with invalid key size
func TestDecryptWithInvalidKey(t *testing.T) {
	invalidKey := make([]byte, 16) // Wrong size
	_, err := Decrypt("someencrypteddata", invalidKey)
	if err == nil {
		t.Fatal("Decryption should fail with invalid key size")
	}
}

// TestDecryptWithInvalidData tests decryption with corrupted data
func TestDecryptWithInvalidData(t *testing.T) {
	key := make([]byte, KeySize)

	testCases := []struct {
		name       string
		ciphertext string
	}{
		{"Invalid base64", "not-valid-base64!!!"},
		{"Too short", "YWJj"}, // "abc" in base64 - only 3 bytes
		{"Empty", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decrypt(tc.ciphertext, key)
			if err == nil {
				t.Fatal("Decryption should fail with invalid data")
			}
		})
	}
}

// TestDecryptWithTamperedData tests that tampering is detected
func TestDecryptWithTamperedData(t *testing.T) {
	key := make([]byte, KeySize)
	plaintext := "original message"

	// Encrypt
	encrypted, _ := Encrypt(plaintext, key)

	// Tamper with encrypted data (flip one character)
	tamperedBytes := []byte(encrypted)
	if tamperedBytes[10] == 'A' {
		tamperedBytes[10] = 'B'
	} else {
		tamperedBytes[10] = 'A'
	}
	tampered := string(tamperedBytes)

	// Try to decrypt tampered data
	_, err := Decrypt(tampered, key)
	if err == nil {
		t.Fatal("Decryption should fail with tampered data (GCM authentication should catch this)")
	}
}

// TestLongPlaintext tests encryption of large data
func TestLongPlaintext(t *testing.T) {
	key := make([]byte, KeySize)

	// Test with 1MB of data
	plaintext := strings.Repeat("a", 1024*1024)

	encrypted, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encryption failed for large data: %v", err)
	}

	decrypted, err := Decrypt(encrypted, key)
	if err != nil {
		t.Fatalf("Decryption failed for large data: %v", err)
	}

	if decrypted != plaintext {
		t.Fatal("Large data decryption mismatch")
	}
}

// BenchmarkEncrypt benchmarks encryption performance
func BenchmarkEncrypt(b *testing.B) {
	key := make([]byte, KeySize)
	plaintext := "benchmark test message"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Encrypt(plaintext, key)
	}
}

// BenchmarkDecrypt benchmarks decryption performance
func BenchmarkDecrypt(b *testing.B) {
	key := make([]byte, KeySize)
	plaintext := "benchmark test message"
	encrypted, _ := Encrypt(plaintext, key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decrypt(encrypted, key)
	}
}

// TestBoxEncryptDecrypt tests the process-scoped Box derived via PBKDF2.
func TestBoxEncryptDecrypt(t *testing.T) {
	testCases := []struct {
		name      string
		plaintext string
		secret    string
	}{
		{"Simple", "hello world", "mysecretkey123"},
		{"Empty plaintext", "", "secret"},
		{"Long secret", "escrow private key material", "this-is-a-very-long-secret-with-special-chars-!@#$%"},
		{"Unicode", "Hello 世界", "秘密鍵"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			box := NewBox(tc.secret)

			encrypted, err := box.Encrypt(tc.plaintext)
			require.NoError(t, err)
			assert.NotEmpty(t, encrypted)

			decrypted, err := box.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

// TestBoxDifferentCiphertextsSamePlaintext checks the round-trip law:
// ciphertext may differ run to run, plaintext must not.
func TestBoxDifferentCiphertextsSamePlaintext(t *testing.T) {
	box := NewBox("same secret")
	plaintext := "same text"

	enc1, _ := box.Encrypt(plaintext)
	enc2, _ := box.Encrypt(plaintext)
	enc3, _ := box.Encrypt(plaintext)

	if enc1 == enc2 || enc1 == enc3 || enc2 == enc3 {
		t.Fatal("Multiple encryptions produced identical output (nonce reuse!)")
	}

	dec1, _ := box.Decrypt(enc1)
	dec2, _ := box.Decrypt(enc2)
	dec3, _ := box.Decrypt(enc3)

	if dec1 != plaintext || dec2 != plaintext || dec3 != plaintext {
		t.Fatal("Not all encryptions decrypted correctly")
	}
}

// TestBoxWrongSecretFails tests that a Box derived from a different secret
// cannot decrypt another Box's blob.
func TestBoxWrongSecretFails(t *testing.T) {
	plaintext := "secret message"

	box := NewBox("correct-secret")
	wrongBox := NewBox("wrong-secret")

	encrypted, err := box.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	_, err = wrongBox.Decrypt(encrypted)
	if err == nil {
		t.Fatal("Decryption should fail with wrong secret")
	}

	if !strings.Contains(err.Error(), "decryption failed") {
		t.Fatalf("Expected 'decryption failed' error, got: %v", err)
	}
}

// TestDeriveKey tests key derivation produces consistent, salt-stable results.
func TestDeriveKey(t *testing.T) {
	secret := "mysecret"

	// Derive key twice with same input — must be deterministic (the static
	// salt means the same ENCRYPTION_KEY always re-derives the same box
	// across process restarts).
	key1 := DeriveKey(secret)
	key2 := DeriveKey(secret)

	if string(key1) != string(key2) {
		t.Fatal("DeriveKey produced different keys for same input")
	}

	if len(key1) != KeySize {
		t.Fatalf("DeriveKey produced wrong key size. Expected %d, got %d", KeySize, len(key1))
	}

	// Different secret must produce a different key.
	key3 := DeriveKey("a different secret")
	if string(key1) == string(key3) {
		t.Fatal("Different secrets produced same key")
	}
}

// TestGenerateKey tests random key generation
func TestGenerateKey(t *testing.T) {
	// Generate multiple keys
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	// Should be correct size
	if len(key1) != KeySize || len(key2) != KeySize {
		t.Fatal("Generated keys are not correct size")
	}

	// Should be different
	if string(key1) == string(key2) {
		t.Fatal("Generated keys are identical (bad randomness!)")
	}
}
