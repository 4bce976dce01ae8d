package types

import (
	"time"

	"github.com/google/uuid"
)

// MFAState tracks the per-user TOTP enrollment state machine:
// disabled -> pending -> enabled -> disabled.
type MFAState string

const (
	MFAStateDisabled MFAState = "disabled"
	MFAStatePending  MFAState = "pending"
	MFAStateEnabled  MFAState = "enabled"
)

// User is the identity aggregate. Credential and Profile are owned values
// persisted together with the user row.
type User struct {
	ID            uuid.UUID
	Email         string
	Username      string
	Roles         []string
	IsActive      bool
	EmailVerified bool
	Credential    UserCredential
	Profile       UserProfile
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserCredential holds password, MFA and lockout state for a user.
type UserCredential struct {
	PasswordHash        string
	PasswordHistory     []string
	PasswordChangedAt   time.Time
	MFAEnabled          bool
	MFASecret           string
	RecoveryCodes       []string
	FailedLoginAttempts int
	LockedUntil         time.Time
	LastLoginAt         time.Time
	// Version guards credential updates against concurrent writers.
	Version int
}

// UserProfile carries the OIDC standard claims exposed through userinfo and
// ID tokens.
type UserProfile struct {
	GivenName   string
	FamilyName  string
	DisplayName string
	Picture     string
	Locale      string
	Zoneinfo    string
}

// Subject returns the stable subject identifier used in tokens.
func (u *User) Subject() string {
	if u == nil {
		return ""
	}
	return u.ID.String()
}

// CanLogin reports whether the account may authenticate at now.
func (u *User) CanLogin(now time.Time) bool {
	if u == nil || !u.IsActive {
		return false
	}
	return !u.Credential.IsLocked(now)
}

// IsLocked reports whether the credential lockout is still in effect.
func (c UserCredential) IsLocked(now time.Time) bool {
	return !c.LockedUntil.IsZero() && now.Before(c.LockedUntil)
}

// MFAState derives the enrollment state from the stored fields.
func (c UserCredential) MFAState() MFAState {
	switch {
	case c.MFAEnabled && c.MFASecret != "":
		return MFAStateEnabled
	case c.MFASecret != "":
		return MFAStatePending
	default:
		return MFAStateDisabled
	}
}

// FullName joins given and family names.
func (p UserProfile) FullName() string {
	switch {
	case p.GivenName == "":
		return p.FamilyName
	case p.FamilyName == "":
		return p.GivenName
	default:
		return p.GivenName + " " + p.FamilyName
	}
}
