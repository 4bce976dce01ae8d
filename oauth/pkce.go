package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/goliatone/go-identity/pkg/types"
)

// VerifyPKCE checks verifier against the stored challenge. A missing challenge
// always passes; a stored challenge with an empty verifier never does.
func VerifyPKCE(challenge, method, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}
	var computed string
	switch normalizeChallengeMethod(method) {
	case types.CodeChallengeMethodS256:
		computed = S256Challenge(verifier)
	case types.CodeChallengeMethodPlain:
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// S256Challenge derives the S256 code challenge for verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func normalizeChallengeMethod(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return types.CodeChallengeMethodPlain
	}
	if strings.EqualFold(method, types.CodeChallengeMethodS256) {
		return types.CodeChallengeMethodS256
	}
	if strings.EqualFold(method, types.CodeChallengeMethodPlain) {
		return types.CodeChallengeMethodPlain
	}
	return method
}
