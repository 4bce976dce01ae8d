package types

import (
	"time"

	"github.com/goliatone/go-identity/scope"
	"github.com/google/uuid"
)

// PKCE challenge methods.
const (
	CodeChallengeMethodS256  = "S256"
	CodeChallengeMethodPlain = "plain"
)

// AuthorizationCode is issued after the user authenticates and consents. It
// is consumed exactly once at token exchange.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              uuid.UUID
	RedirectURI         string
	Scope               string
	Nonce               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	IsUsed              bool
	UsedAt              time.Time
}

// IsExpired reports whether the code expiry has passed at now.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return c == nil || now.After(c.ExpiresAt)
}

// IsValid reports whether the code can still be redeemed.
func (c *AuthorizationCode) IsValid(now time.Time) bool {
	return c != nil && !c.IsUsed && !c.IsExpired(now)
}

// RefreshToken is a long lived grant. Rotation links tokens through
// ParentToken and ReplacedBy so a chain can be walked in both directions.
type RefreshToken struct {
	Token       string
	ClientID    string
	UserID      uuid.UUID
	Scope       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	IsRevoked   bool
	RevokedAt   time.Time
	ReplacedBy  string
	ParentToken string
}

// IsExpired reports whether the refresh token expiry has passed at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return t == nil || now.After(t.ExpiresAt)
}

// IsValid reports whether the token can still be exchanged.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return t != nil && !t.IsRevoked && !t.IsExpired(now)
}

// Consent records the scopes a user approved for a client.
type Consent struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ClientID  string
	Scopes    []string
	Remember  bool
	GrantedAt time.Time
	// ExpiresAt is zero for consents that never expire.
	ExpiresAt time.Time
}

// CoversScopes reports whether every requested scope was granted.
func (c *Consent) CoversScopes(requested []string) bool {
	if c == nil {
		return false
	}
	return scope.Subset(requested, c.Scopes)
}

// IsExpired reports whether the consent is no longer usable at now.
func (c *Consent) IsExpired(now time.Time) bool {
	if c == nil {
		return true
	}
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenBlacklistEntry marks an access token JTI as revoked until the token
// would have expired on its own.
type TokenBlacklistEntry struct {
	JTI       string
	RevokedAt time.Time
	Reason    string
	ExpiresAt time.Time
}

// PasswordResetToken is a one-time token delivered out of band.
type PasswordResetToken struct {
	Token     string
	UserID    uuid.UUID
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	IsUsed    bool
	UsedAt    time.Time
}

// IsValid reports whether the reset token is unused and unexpired.
func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return t != nil && !t.IsUsed && now.Before(t.ExpiresAt)
}

// Session is created once a login completes.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ClientID    string
	IP          string
	UserAgent   string
	AuthMethods []string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// LoginAttempt is recorded for every login, successful or not.
type LoginAttempt struct {
	ID            uuid.UUID
	Email         string
	IP            string
	UserAgent     string
	Success       bool
	FailureReason string
	OccurredAt    time.Time
}

// Failure reasons recorded with login attempts.
const (
	FailureReasonUserNotFound    = "user_not_found"
	FailureReasonInvalidPassword = "invalid_password"
	FailureReasonAccountInactive = "account_inactive"
	FailureReasonAccountLocked   = "account_locked"
	FailureReasonIPBlocked       = "ip_blocked"
	FailureReasonTooManyAttempts = "too_many_attempts"
	FailureReasonInvalidMFA      = "invalid_mfa_code"
)
