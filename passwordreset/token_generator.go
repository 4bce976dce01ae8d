package passwordreset

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
)

const randomTokenBytes = 32

// RandomTokenGenerator mints opaque URL-safe reset tokens. The stored row is
// the only source of truth for them.
type RandomTokenGenerator struct{}

var _ types.ResetTokenGenerator = RandomTokenGenerator{}

// GenerateResetToken implements types.ResetTokenGenerator.
func (RandomTokenGenerator) GenerateResetToken(context.Context, types.User, time.Time) (string, error) {
	buf := make([]byte, randomTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
