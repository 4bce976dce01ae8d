package types

import (
	"time"

	"github.com/google/uuid"
)

// ClientType distinguishes clients able to keep a secret from those that cannot.
type ClientType string

const (
	ClientTypePublic       ClientType = "public"
	ClientTypeConfidential ClientType = "confidential"
)

// Grant and response types understood by the authorization server.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"

	ResponseTypeCode = "code"
)

// Scopes with protocol meaning.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
)

// Client is a registered OAuth2 relying party. It is read once per request and
// never mutated by the core.
type Client struct {
	ID              uuid.UUID
	ClientID        string
	Name            string
	SecretHash      string
	Type            ClientType
	RedirectURIs    []string
	AllowedScopes   []string
	GrantTypes      []string
	ResponseTypes   []string
	AccessTokenTTL  time.Duration
	IDTokenTTL      time.Duration
	RefreshTokenTTL time.Duration
	IsFirstParty    bool
	IsActive        bool
	RequirePKCE     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsConfidential reports whether the client authenticates with a secret.
func (c *Client) IsConfidential() bool {
	return c != nil && c.Type == ClientTypeConfidential
}

// HasRedirectURI reports an exact match against the registered URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	if c == nil || uri == "" {
		return false
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// SupportsResponseType reports whether the client may use the response type.
// Clients without an explicit list only support "code".
func (c *Client) SupportsResponseType(responseType string) bool {
	if c == nil {
		return false
	}
	if len(c.ResponseTypes) == 0 {
		return responseType == ResponseTypeCode
	}
	return containsString(c.ResponseTypes, responseType)
}

// SupportsGrantType reports whether the client may use the grant type.
// Clients without an explicit list get the authorization code and refresh
// grants.
func (c *Client) SupportsGrantType(grantType string) bool {
	if c == nil {
		return false
	}
	if len(c.GrantTypes) == 0 {
		return grantType == GrantTypeAuthorizationCode || grantType == GrantTypeRefreshToken
	}
	return containsString(c.GrantTypes, grantType)
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
