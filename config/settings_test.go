package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	settings := Default()

	require.Equal(t, "go-identity", settings.Issuer)
	require.Equal(t, "HS256", settings.SigningMethod)
	require.Equal(t, time.Hour, settings.Tokens.AccessTokenTTL)
	require.Equal(t, 30*24*time.Hour, settings.Tokens.RefreshTokenTTL)
	require.Equal(t, 10*time.Minute, settings.Tokens.AuthorizationCodeTTL)
	require.Equal(t, time.Hour, settings.Tokens.PasswordResetTTL)
	require.Equal(t, 5, settings.Lockout.MaxAttempts)
	require.Equal(t, 15*time.Minute, settings.Lockout.LockoutDuration)
	require.Equal(t, 10, settings.MFA.RecoveryCodeCount)
	require.Equal(t, 5*time.Minute, settings.MFA.TokenTTL)
	require.NotNil(t, settings.MFA.Skew)
	require.Equal(t, uint(1), *settings.MFA.Skew)
}

func TestLoadFromOverrides(t *testing.T) {
	settings, err := LoadFrom(map[string]string{
		"IDENTITY_ISSUER":               "https://id.example.com",
		"IDENTITY_ACCESS_TOKEN_TTL":     "15m",
		"IDENTITY_LOCKOUT_MAX_ATTEMPTS": "3",
		"IDENTITY_PASSWORD_MIN_LENGTH":  "12",
		"IDENTITY_MFA_SKEW":             "0",
	})
	require.NoError(t, err)

	require.Equal(t, "https://id.example.com", settings.Issuer)
	require.Equal(t, 15*time.Minute, settings.Tokens.AccessTokenTTL)
	require.Equal(t, 3, settings.Lockout.MaxAttempts)
	require.Equal(t, 12, settings.Password.MinLength)
	require.NotNil(t, settings.MFA.Skew)
	require.Zero(t, *settings.MFA.Skew)
}

func TestLoadFromRejectsMalformedDuration(t *testing.T) {
	_, err := LoadFrom(map[string]string{"IDENTITY_ACCESS_TOKEN_TTL": "soon"})
	require.Error(t, err)
}
