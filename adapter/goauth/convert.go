package goauth

import (
	"time"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-identity/pkg/types"
)

// Metadata keys holding the state go-auth has no columns for.
const (
	MetadataCredential = "identity_credential"
	MetadataProfile    = "identity_profile"
)

// UserToDomain converts the go-auth user model into the identity aggregate.
func UserToDomain(user *auth.User) *types.User {
	return toUser(user)
}

// UserFromDomain converts the identity aggregate into the go-auth model.
func UserFromDomain(user types.User) *auth.User {
	return fromUser(user, nil)
}

func toUser(record *auth.User) *types.User {
	if record == nil {
		return nil
	}
	cred := decodeCredential(record.Metadata)
	cred.PasswordHash = record.PasswordHash
	user := &types.User{
		ID:            record.ID,
		Email:         record.Email,
		Username:      record.Username,
		IsActive:      record.Status == auth.UserStatusActive,
		EmailVerified: record.EmailValidated,
		Credential:    cred,
		Profile:       decodeProfile(record.Metadata),
	}
	if record.Role != "" {
		user.Roles = []string{string(record.Role)}
	}
	user.Profile.GivenName = record.FirstName
	user.Profile.FamilyName = record.LastName
	if record.CreatedAt != nil {
		user.CreatedAt = *record.CreatedAt
	}
	if record.UpdatedAt != nil {
		user.UpdatedAt = *record.UpdatedAt
	}
	return user
}

// fromUser maps user onto base when given so go-auth columns the identity
// model does not know about survive the round trip.
func fromUser(user types.User, base *auth.User) *auth.User {
	record := &auth.User{}
	if base != nil {
		clone := *base
		record = &clone
	}
	record.ID = user.ID
	record.Email = user.Email
	record.Username = user.Username
	record.FirstName = user.Profile.GivenName
	record.LastName = user.Profile.FamilyName
	record.PasswordHash = user.Credential.PasswordHash
	record.EmailValidated = user.EmailVerified
	if len(user.Roles) > 0 {
		record.Role = auth.UserRole(user.Roles[0])
	}
	switch {
	case user.IsActive:
		record.Status = auth.UserStatusActive
	case record.Status == auth.UserStatusActive || record.Status == "":
		record.Status = auth.UserStatus("suspended")
	}
	if !user.CreatedAt.IsZero() {
		created := user.CreatedAt
		record.CreatedAt = &created
	}
	if !user.UpdatedAt.IsZero() {
		updated := user.UpdatedAt
		record.UpdatedAt = &updated
	}
	metadata := copyMetadata(record.Metadata)
	metadata = encodeCredential(metadata, user.Credential)
	metadata = encodeProfile(metadata, user.Profile)
	record.Metadata = metadata
	return record
}

func encodeCredential(metadata map[string]any, cred types.UserCredential) map[string]any {
	metadata = copyMetadata(metadata)
	metadata[MetadataCredential] = map[string]any{
		"password_history":      stringsToAny(cred.PasswordHistory),
		"password_changed_at":   formatTime(cred.PasswordChangedAt),
		"mfa_enabled":           cred.MFAEnabled,
		"mfa_secret":            cred.MFASecret,
		"recovery_codes":        stringsToAny(cred.RecoveryCodes),
		"failed_login_attempts": cred.FailedLoginAttempts,
		"locked_until":          formatTime(cred.LockedUntil),
		"last_login_at":         formatTime(cred.LastLoginAt),
		"version":               cred.Version,
	}
	return metadata
}

// decodeCredential tolerates values that went through a JSON column: numbers
// come back as float64 and lists as []any.
func decodeCredential(metadata map[string]any) types.UserCredential {
	raw, _ := metadata[MetadataCredential].(map[string]any)
	if raw == nil {
		return types.UserCredential{Version: 1}
	}
	cred := types.UserCredential{
		PasswordHistory:     anyToStrings(raw["password_history"]),
		PasswordChangedAt:   parseTime(raw["password_changed_at"]),
		MFAEnabled:          anyToBool(raw["mfa_enabled"]),
		MFASecret:           anyToString(raw["mfa_secret"]),
		RecoveryCodes:       anyToStrings(raw["recovery_codes"]),
		FailedLoginAttempts: anyToInt(raw["failed_login_attempts"]),
		LockedUntil:         parseTime(raw["locked_until"]),
		LastLoginAt:         parseTime(raw["last_login_at"]),
		Version:             anyToInt(raw["version"]),
	}
	if cred.Version == 0 {
		cred.Version = 1
	}
	return cred
}

func encodeProfile(metadata map[string]any, profile types.UserProfile) map[string]any {
	metadata = copyMetadata(metadata)
	metadata[MetadataProfile] = map[string]any{
		"display_name": profile.DisplayName,
		"picture":      profile.Picture,
		"locale":       profile.Locale,
		"zoneinfo":     profile.Zoneinfo,
	}
	return metadata
}

func decodeProfile(metadata map[string]any) types.UserProfile {
	raw, _ := metadata[MetadataProfile].(map[string]any)
	return types.UserProfile{
		DisplayName: anyToString(raw["display_name"]),
		Picture:     anyToString(raw["picture"]),
		Locale:      anyToString(raw["locale"]),
		Zoneinfo:    anyToString(raw["zoneinfo"]),
	}
}

func copyMetadata(origin map[string]any) map[string]any {
	out := make(map[string]any, len(origin)+2)
	for k, v := range origin {
		out[k] = v
	}
	return out
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func anyToStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func anyToString(value any) string {
	s, _ := value.(string)
	return s
}

func anyToBool(value any) bool {
	b, _ := value.(bool)
	return b
}

func anyToInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value any) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v.UTC()
	case string:
		if v == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	default:
		return time.Time{}
	}
}
