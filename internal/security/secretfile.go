package security

import (
	"encoding/hex"
	"fmt"
	"os"
)

// LoadEncryptedSecret reads the hex-encoded, nonce-prefixed ChaCha20-Poly1305
// ciphertext at path and decrypts it with keyHex (a hex-encoded 32-byte key),
// returning the plaintext signing secret. Used to keep the JWT signing
// material off disk in plaintext between restarts.
func LoadEncryptedSecret(path, keyHex string) (string, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("security: invalid encryption key encoding: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("security: failed to read secret file: %w", err)
	}
	encrypted, err := hex.DecodeString(string(raw))
	if err != nil {
		return "", fmt.Errorf("security: invalid secret file encoding: %w", err)
	}

	cm := NewCryptoManager()
	plaintext, err := cm.Decrypt(encrypted, key)
	if err != nil {
		return "", fmt.Errorf("security: failed to decrypt secret file: %w", err)
	}
	return string(plaintext), nil
}
