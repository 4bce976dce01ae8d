package types

import (
	"time"
)

// SecureLinkManager signs and verifies the links mailed for password resets.
type SecureLinkManager interface {
	Generate(route string, payloads ...SecureLinkPayload) (string, error)
	Validate(token string) (map[string]any, error)
	GetExpiration() time.Duration
}

// SecureLinkPayload is the claim set embedded in a signed link.
type SecureLinkPayload map[string]any

// ResetLinkPayload builds the claims carried by a password reset link.
func ResetLinkPayload(userID, email string, expiresAt time.Time) SecureLinkPayload {
	return SecureLinkPayload{
		"user_id":    userID,
		"email":      email,
		"action":     "password_reset",
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}
}

// SecureLinkConfigurator supplies signing settings for a SecureLinkManager.
type SecureLinkConfigurator interface {
	GetSigningKey() string
	GetExpiration() time.Duration
	GetBaseURL() string
	GetQueryKey() string
	GetRoutes() map[string]string
	GetAsQuery() bool
}
