package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// resetTokenBytes is the number of random bytes in a reset token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const resetTokenBytes = 32

// generateResetToken draws a raw reset token from random and returns it with
// its stored hash. Only the hash is ever persisted.
func generateResetToken(random io.Reader) (raw, hash string, err error) {
	b := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(random, b); err != nil {
		return "", "", fmt.Errorf("generating reset token: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, HashResetToken(raw), nil
}

// HashResetToken returns the hex SHA-256 of a raw reset token. Reset tokens
// carry full entropy, so a fast unsalted hash is enough.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
