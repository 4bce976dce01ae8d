package types

import (
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConsentCoversScopes(t *testing.T) {
	consent := &Consent{Scopes: []string{"openid", "profile"}}

	require.True(t, consent.CoversScopes([]string{"openid", "profile"}))
	require.True(t, consent.CoversScopes([]string{"profile"}))
	require.False(t, consent.CoversScopes([]string{"openid", "email"}))

	partial := &Consent{Scopes: []string{"openid"}}
	require.False(t, partial.CoversScopes([]string{"openid", "profile"}))
}

func TestConsentExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.False(t, (&Consent{}).IsExpired(now))
	require.True(t, (&Consent{ExpiresAt: now}).IsExpired(now))
	require.False(t, (&Consent{ExpiresAt: now.Add(time.Minute)}).IsExpired(now))
}

func TestAuthorizationCodeExpiryBoundary(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	code := &AuthorizationCode{CreatedAt: created, ExpiresAt: created.Add(10 * time.Minute)}

	require.True(t, code.IsValid(created.Add(9*time.Minute+59*time.Second)))
	require.False(t, code.IsValid(created.Add(10*time.Minute+time.Second)))

	code.IsUsed = true
	require.False(t, code.IsValid(created))
}

func TestRefreshTokenValidity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token := &RefreshToken{ExpiresAt: now.Add(time.Hour)}

	require.True(t, token.IsValid(now))
	token.IsRevoked = true
	require.False(t, token.IsValid(now))
	require.False(t, (*RefreshToken)(nil).IsValid(now))
}

func TestCredentialMFAState(t *testing.T) {
	require.Equal(t, MFAStateDisabled, UserCredential{}.MFAState())
	require.Equal(t, MFAStatePending, UserCredential{MFASecret: "ABC"}.MFAState())
	require.Equal(t, MFAStateEnabled, UserCredential{MFASecret: "ABC", MFAEnabled: true}.MFAState())
}

func TestUserCanLogin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	user := &User{ID: uuid.New(), IsActive: true}
	require.True(t, user.CanLogin(now))

	user.Credential.LockedUntil = now.Add(time.Minute)
	require.False(t, user.CanLogin(now))
	require.True(t, user.CanLogin(now.Add(2*time.Minute)))

	user.IsActive = false
	require.False(t, user.CanLogin(now.Add(2*time.Minute)))
}

func TestClientDefaults(t *testing.T) {
	client := &Client{RedirectURIs: []string{"https://x/cb"}}

	require.True(t, client.HasRedirectURI("https://x/cb"))
	require.False(t, client.HasRedirectURI("https://x/cb/"))
	require.True(t, client.SupportsResponseType(ResponseTypeCode))
	require.False(t, client.SupportsResponseType("token"))
	require.True(t, client.SupportsGrantType(GrantTypeRefreshToken))
	require.False(t, client.SupportsGrantType(GrantTypeClientCredentials))
}

func TestOAuthErrorCarriesTextCode(t *testing.T) {
	err := NewInvalidGrant()
	require.Equal(t, ErrorInvalidGrant, ErrorCode(err))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(error(NewOAuthError(ErrorInvalidClient, "unknown client")), &richErr))
	require.Equal(t, goerrors.CategoryAuth, richErr.Category)
	require.True(t, HasErrorCode(richErr, ErrorInvalidClient))
	require.Empty(t, ErrorCode(ErrStaleRecord))
}
