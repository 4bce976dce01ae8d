package oauth

import (
	"crypto/rand"
	"encoding/base64"
)

// Byte lengths for generated secrets.
const (
	codeBytes    = 32
	refreshBytes = 48
)

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
