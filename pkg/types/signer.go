package types

import (
	"context"
	"time"
)

// TokenUse identifies what a signed token is for.
type TokenUse string

const (
	TokenUseAccess TokenUse = "access"
	TokenUseID     TokenUse = "id"
	TokenUseMFA    TokenUse = "mfa"
)

// AccessTokenClaims describes an access token to sign. Subject is the user
// subject for user grants and the client id for client credentials.
type AccessTokenClaims struct {
	Subject   string
	ClientID  string
	Scope     string
	Roles     []string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IDTokenClaims describes an OIDC ID token to sign.
type IDTokenClaims struct {
	Subject   string
	ClientID  string
	Nonce     string
	JTI       string
	AuthTime  time.Time
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Claims holds user-info claims already filtered by scope.
	Claims map[string]any
}

// MFATokenClaims describes the short lived token handed out during login
// step-up.
type MFATokenClaims struct {
	Subject   string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// DecodedToken is a verified token. Signers only return it for tokens whose
// signature and expiry check out.
type DecodedToken struct {
	Use       TokenUse
	Subject   string
	ClientID  string
	Scope     string
	JTI       string
	Issuer    string
	Audience  []string
	Roles     []string
	IssuedAt  time.Time
	NotBefore time.Time
	ExpiresAt time.Time
}

// Signer mints and verifies tokens. DecodeToken failures are soft: callers
// treat any error as an unusable token.
type Signer interface {
	Issuer() string
	CreateAccessToken(ctx context.Context, claims AccessTokenClaims) (string, error)
	CreateIDToken(ctx context.Context, claims IDTokenClaims) (string, error)
	CreateMFAToken(ctx context.Context, claims MFATokenClaims) (string, error)
	DecodeToken(ctx context.Context, token string) (*DecodedToken, error)
}
