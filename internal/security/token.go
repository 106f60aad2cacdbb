package security

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenBytes is the amount of randomness in an invitation token.
// Encoded tokens are twice as long.
const TokenBytes = 32

// GenerateToken returns a hex encoded random token suitable for invitation links
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
