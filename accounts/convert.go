package accounts

import (
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

func userFromDomain(user types.User) *UserRecord {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	return &UserRecord{
		ID:            user.ID,
		Email:         user.Email,
		Username:      user.Username,
		Roles:         roles,
		IsActive:      user.IsActive,
		EmailVerified: user.EmailVerified,
		GivenName:     user.Profile.GivenName,
		FamilyName:    user.Profile.FamilyName,
		DisplayName:   user.Profile.DisplayName,
		Picture:       user.Profile.Picture,
		Locale:        user.Profile.Locale,
		Zoneinfo:      user.Profile.Zoneinfo,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func credentialFromDomain(userID uuid.UUID, cred types.UserCredential, now time.Time) *CredentialRecord {
	return &CredentialRecord{
		UserID:              userID,
		PasswordHash:        cred.PasswordHash,
		PasswordHistory:     nonNil(cred.PasswordHistory),
		PasswordChangedAt:   timePtr(cred.PasswordChangedAt),
		MFAEnabled:          cred.MFAEnabled,
		MFASecret:           cred.MFASecret,
		RecoveryCodes:       nonNil(cred.RecoveryCodes),
		FailedLoginAttempts: cred.FailedLoginAttempts,
		LockedUntil:         timePtr(cred.LockedUntil),
		LastLoginAt:         timePtr(cred.LastLoginAt),
		Version:             cred.Version,
		UpdatedAt:           now,
	}
}

func toDomain(rec *UserRecord, cred *CredentialRecord) *types.User {
	if rec == nil {
		return nil
	}
	user := &types.User{
		ID:            rec.ID,
		Email:         rec.Email,
		Username:      rec.Username,
		Roles:         append([]string(nil), rec.Roles...),
		IsActive:      rec.IsActive,
		EmailVerified: rec.EmailVerified,
		Profile: types.UserProfile{
			GivenName:   rec.GivenName,
			FamilyName:  rec.FamilyName,
			DisplayName: rec.DisplayName,
			Picture:     rec.Picture,
			Locale:      rec.Locale,
			Zoneinfo:    rec.Zoneinfo,
		},
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if cred != nil {
		user.Credential = types.UserCredential{
			PasswordHash:        cred.PasswordHash,
			PasswordHistory:     append([]string(nil), cred.PasswordHistory...),
			PasswordChangedAt:   timeFromPtr(cred.PasswordChangedAt),
			MFAEnabled:          cred.MFAEnabled,
			MFASecret:           cred.MFASecret,
			RecoveryCodes:       append([]string(nil), cred.RecoveryCodes...),
			FailedLoginAttempts: cred.FailedLoginAttempts,
			LockedUntil:         timeFromPtr(cred.LockedUntil),
			LastLoginAt:         timeFromPtr(cred.LastLoginAt),
			Version:             cred.Version,
		}
	}
	return user
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	copy := value
	return &copy
}

func timeFromPtr(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
