package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists the user aggregate. Lookups return (nil, nil) when
// the user does not exist.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user User) (*User, error)
	// Update writes the user, profile and credential. The credential write is
	// conditional on Credential.Version and fails with ErrStaleRecord when
	// another writer got there first. Lockout counters are not touched.
	Update(ctx context.Context, user User) (*User, error)
	// RecordFailedLogin increments the failure counter in a single statement
	// and sets LockedUntil once maxAttempts is reached.
	RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockout time.Duration, now time.Time) (LockoutState, error)
	// ResetFailedLogins clears counters and lockout after a successful login.
	ResetFailedLogins(ctx context.Context, id uuid.UUID, now time.Time) error
}

// LockoutState reports the counters after a failed login was recorded.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// ClientRepository resolves registered clients.
type ClientRepository interface {
	GetByClientID(ctx context.Context, clientID string) (*Client, error)
}

// AuthorizationCodeRepository stores authorization codes.
type AuthorizationCodeRepository interface {
	Save(ctx context.Context, code AuthorizationCode) error
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// MarkAsUsed is a compare-and-set: exactly one caller wins for a given
	// code, the rest get ErrStaleRecord.
	MarkAsUsed(ctx context.Context, code string, usedAt time.Time) error
}

// RefreshTokenRepository stores refresh tokens and their rotation chain.
type RefreshTokenRepository interface {
	Save(ctx context.Context, token RefreshToken) error
	GetByToken(ctx context.Context, token string) (*RefreshToken, error)
	Revoke(ctx context.Context, token string, revokedAt time.Time) error
	// Rotate revokes current (only if still live) and persists next in one
	// unit. Losing the race yields ErrStaleRecord and persists nothing.
	Rotate(ctx context.Context, current string, next RefreshToken, rotatedAt time.Time) error
	// RevokeAllForUser revokes every live refresh token held by the user.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) (int, error)
}

// TokenBlacklistRepository records revoked access token JTIs.
type TokenBlacklistRepository interface {
	Add(ctx context.Context, entry TokenBlacklistEntry) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// ConsentRepository stores user consents per client.
type ConsentRepository interface {
	GetByUserAndClient(ctx context.Context, userID uuid.UUID, clientID string) (*Consent, error)
	Save(ctx context.Context, consent Consent) (*Consent, error)
	Delete(ctx context.Context, userID uuid.UUID, clientID string) error
}

// PasswordResetRepository stores password reset tokens.
type PasswordResetRepository interface {
	Save(ctx context.Context, token PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	// MarkAsUsed consumes an unused, unexpired token or fails with ErrStaleRecord.
	MarkAsUsed(ctx context.Context, token string, usedAt time.Time) error
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

// SessionManager creates login sessions.
type SessionManager interface {
	CreateSession(ctx context.Context, session Session) (*Session, error)
}

// SessionTerminator ends every session of a user, used after credential
// resets.
type SessionTerminator interface {
	EndSessionsForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// LoginAttemptRepository backs the brute-force guard.
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt LoginAttempt) error
	// FailureStats counts failures for the key after max(since, last success).
	FailureStats(ctx context.Context, key AttemptKey, since time.Time) (AttemptStats, error)
}

// AttemptKey selects attempts by email or by IP. Exactly one field is set.
type AttemptKey struct {
	Email string
	IP    string
}

// AttemptStats summarizes recent failures for a key.
type AttemptStats struct {
	Failures      int
	LastFailureAt time.Time
	LastSuccessAt time.Time
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// PasswordInput carries the context a password policy evaluates against.
type PasswordInput struct {
	Password string
	Email    string
	Username string
	History  []string
}

// PasswordPolicy validates a candidate password and reports every violation.
type PasswordPolicy interface {
	Validate(input PasswordInput) []string
}

// ResetTokenGenerator mints password reset token strings.
type ResetTokenGenerator interface {
	GenerateResetToken(ctx context.Context, user User, expiresAt time.Time) (string, error)
}
