package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRecord models the persisted users row.
type UserRecord struct {
	bun.BaseModel `bun:"table:users"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	Email         string    `bun:"email,notnull"`
	Username      string    `bun:"username,nullzero"`
	Roles         []string  `bun:"roles,type:jsonb"`
	IsActive      bool      `bun:"is_active,notnull"`
	EmailVerified bool      `bun:"email_verified,notnull"`
	GivenName     string    `bun:"given_name,nullzero"`
	FamilyName    string    `bun:"family_name,nullzero"`
	DisplayName   string    `bun:"display_name,nullzero"`
	Picture       string    `bun:"picture,nullzero"`
	Locale        string    `bun:"locale,nullzero"`
	Zoneinfo      string    `bun:"zoneinfo,nullzero"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// CredentialRecord models the persisted user_credentials row.
type CredentialRecord struct {
	bun.BaseModel `bun:"table:user_credentials"`

	UserID              uuid.UUID  `bun:"user_id,pk,type:uuid"`
	PasswordHash        string     `bun:"password_hash,notnull"`
	PasswordHistory     []string   `bun:"password_history,type:jsonb"`
	PasswordChangedAt   *time.Time `bun:"password_changed_at,nullzero"`
	MFAEnabled          bool       `bun:"mfa_enabled,notnull"`
	MFASecret           string     `bun:"mfa_secret,nullzero"`
	RecoveryCodes       []string   `bun:"recovery_codes,type:jsonb"`
	FailedLoginAttempts int        `bun:"failed_login_attempts,notnull"`
	LockedUntil         *time.Time `bun:"locked_until,nullzero"`
	LastLoginAt         *time.Time `bun:"last_login_at,nullzero"`
	Version             int        `bun:"version,notnull"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull"`
}
