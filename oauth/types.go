package oauth

import (
	"time"

	"github.com/google/uuid"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// TokenResult is the outcome of a successful grant.
type TokenResult struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	ExpiresIn    int64
	Scope        string
	// JTI of the access token, usable for blacklisting.
	JTI       string
	UserID    uuid.UUID
	ClientID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Response renders the token endpoint body.
func (r *TokenResult) Response() TokenResponse {
	if r == nil {
		return TokenResponse{}
	}
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = TokenTypeBearer
	}
	return TokenResponse{
		AccessToken:  r.AccessToken,
		TokenType:    tokenType,
		RefreshToken: r.RefreshToken,
		IDToken:      r.IDToken,
		ExpiresIn:    r.ExpiresIn,
		Scope:        r.Scope,
	}
}

// TokenResponse is the RFC6749 section 5.1 token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// ErrorResponse is the RFC6749 section 5.2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// IntrospectionResponse is the RFC7662 introspection body. Inactive tokens
// only carry Active=false.
type IntrospectionResponse struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
	Iat       int64    `json:"iat,omitempty"`
	Nbf       int64    `json:"nbf,omitempty"`
	Sub       string   `json:"sub,omitempty"`
	Aud       []string `json:"aud,omitempty"`
	Iss       string   `json:"iss,omitempty"`
	Jti       string   `json:"jti,omitempty"`
}

// AuthorizationRequest carries the query parameters of /authorize.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidatedAuthorization is a request that passed validation. Scope holds the
// requested scopes the client is allowed to ask for.
type ValidatedAuthorization struct {
	Client              ClientSummary
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ClientSummary is the public view of a client shown on consent screens.
type ClientSummary struct {
	ClientID     string
	Name         string
	IsFirstParty bool
}

// CodeRequest describes a code to mint after the user authenticated and
// consented.
type CodeRequest struct {
	UserID              uuid.UUID
	ClientID            string
	RedirectURI         string
	Scope               string
	Nonce               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CodeExchange is the authorization_code grant input.
type CodeExchange struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

// RefreshRequest is the refresh_token grant input.
type RefreshRequest struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenRequest is the token endpoint input for any grant.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	ClientID     string
	ClientSecret string
	Scope        string
}

// IntrospectionRequest is the RFC7662 input with the calling client's
// credentials.
type IntrospectionRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}

// RevocationRequest is the RFC7009 input.
type RevocationRequest struct {
	Token         string
	TokenTypeHint string
	ClientID      string
	ClientSecret  string
}

// Token type hints accepted by introspection and revocation.
const (
	TokenHintAccessToken  = "access_token"
	TokenHintRefreshToken = "refresh_token"
)
