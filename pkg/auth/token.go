// Package auth provides encounter access tokens: generation, keyed hashing,
// and constant-time verification.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenBytes is the raw entropy per token (192 bits).
const tokenBytes = 24

// GenerateToken returns a URL-safe opaque token for encounter access.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken derives the stored token hash as hex(sha256(rawToken || serverSalt)).
// Deterministic: equal inputs always yield equal outputs.
func HashToken(rawToken, serverSalt string) string {
	sum := sha256.Sum256([]byte(rawToken + serverSalt))
	return hex.EncodeToString(sum[:])
}

// VerifyToken compares a raw token against a stored hash in constant time.
// Invalid inputs never panic; they simply fail verification.
func VerifyToken(rawToken, storedHash, serverSalt string) bool {
	computed := HashToken(rawToken, serverSalt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
