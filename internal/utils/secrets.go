package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// MinSecretBytes is the shortest signing secret the server accepts (256 bits)
const MinSecretBytes = 32

// GenerateSecret generates a hex encoded random secret of n bytes
func GenerateSecret(n int) (string, error) {
	if n < MinSecretBytes {
		return "", fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretBytes, n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
