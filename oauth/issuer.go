package oauth

import (
	"context"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/scope"
)

// IssuerConfig wires the TokenIssuer.
type IssuerConfig struct {
	Signer        types.Signer
	RefreshTokens types.RefreshTokenRepository
	// ClientHasher verifies client secrets for the client credentials grant.
	ClientHasher types.PasswordHasher
	Lifetimes    *LifetimeResolver
	Clock        types.Clock
	IDGen        types.IDGenerator
	Logger       types.Logger
	Hooks        types.Hooks
}

// TokenIssuer decides which tokens a grant yields and with which claims.
// Signing is delegated to types.Signer.
type TokenIssuer struct {
	signer    types.Signer
	refresh   types.RefreshTokenRepository
	hasher    types.PasswordHasher
	lifetimes *LifetimeResolver
	clock     types.Clock
	ids       types.IDGenerator
	logger    types.Logger
	hooks     types.Hooks
}

// NewTokenIssuer validates cfg and builds an issuer.
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if cfg.Signer == nil {
		return nil, types.ErrMissingSigner
	}
	if cfg.RefreshTokens == nil {
		return nil, types.ErrMissingRefreshTokenRepository
	}
	lifetimes := cfg.Lifetimes
	if lifetimes == nil {
		lifetimes = NewLifetimeResolver(Lifetimes{})
	}
	return &TokenIssuer{
		signer:    cfg.Signer,
		refresh:   cfg.RefreshTokens,
		hasher:    cfg.ClientHasher,
		lifetimes: lifetimes,
		clock:     safeClock(cfg.Clock),
		ids:       safeIDGen(cfg.IDGen),
		logger:    safeLogger(cfg.Logger),
		hooks:     cfg.Hooks,
	}, nil
}

// IssueOption tweaks a single GenerateTokens call.
type IssueOption func(*issueOptions)

type issueOptions struct {
	grantType      string
	authTime       time.Time
	refreshToken   *types.RefreshToken
	persistRefresh bool
}

// WithGrantType labels the token event emitted after issuance.
func WithGrantType(grantType string) IssueOption {
	return func(o *issueOptions) {
		o.grantType = grantType
	}
}

// WithAuthTime stamps auth_time on the ID token.
func WithAuthTime(at time.Time) IssueOption {
	return func(o *issueOptions) {
		o.authTime = at
	}
}

// withRotatedRefresh hands over a refresh token already persisted by
// rotation.
func withRotatedRefresh(token types.RefreshToken) IssueOption {
	return func(o *issueOptions) {
		o.refreshToken = &token
		o.persistRefresh = false
	}
}

// GenerateTokens mints an access token, a refresh token when offline_access
// is granted and an ID token when openid is granted.
func (i *TokenIssuer) GenerateTokens(ctx context.Context, user *types.User, client *types.Client, rawScope, nonce string, options ...IssueOption) (*TokenResult, error) {
	if user == nil {
		return nil, types.NewInvalidGrant()
	}
	if client == nil {
		return nil, invalidClient()
	}
	o := issueOptions{grantType: types.GrantTypeAuthorizationCode, persistRefresh: true}
	for _, opt := range options {
		if opt != nil {
			opt(&o)
		}
	}

	scopes := scope.Parse(rawScope)
	lifetimes, err := i.lifetimes.Resolve(client)
	if err != nil {
		i.logger.Error("token lifetime resolution failed", err, "client_id", client.ClientID)
	}
	now := i.clock.Now()
	jti := i.ids.UUID().String()

	access, err := i.signer.CreateAccessToken(ctx, types.AccessTokenClaims{
		Subject:   user.Subject(),
		ClientID:  client.ClientID,
		Scope:     scope.Format(scopes),
		Roles:     user.Roles,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetimes.AccessToken),
	})
	if err != nil {
		return nil, types.NewServerError(err, "")
	}

	result := &TokenResult{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(lifetimes.AccessToken / time.Second),
		Scope:       scope.Format(scopes),
		JTI:         jti,
		UserID:      user.ID,
		ClientID:    client.ClientID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(lifetimes.AccessToken),
	}

	if scope.Contains(scopes, types.ScopeOpenID) {
		idToken, err := i.signer.CreateIDToken(ctx, types.IDTokenClaims{
			Subject:   user.Subject(),
			ClientID:  client.ClientID,
			Nonce:     nonce,
			JTI:       i.ids.UUID().String(),
			AuthTime:  o.authTime,
			IssuedAt:  now,
			ExpiresAt: now.Add(lifetimes.IDToken),
			Claims:    UserInfoClaims(user, scopes),
		})
		if err != nil {
			return nil, types.NewServerError(err, "")
		}
		result.IDToken = idToken
	}

	switch {
	case o.refreshToken != nil:
		result.RefreshToken = o.refreshToken.Token
	case scope.Contains(scopes, types.ScopeOfflineAccess):
		token, err := i.newRefreshToken(user, client, scopes, now, lifetimes)
		if err != nil {
			return nil, types.NewServerError(err, "")
		}
		if o.persistRefresh {
			if err := i.refresh.Save(ctx, token); err != nil {
				return nil, types.NewServerError(err, "")
			}
		}
		result.RefreshToken = token.Token
	}

	emitTokenHook(ctx, i.hooks, types.TokenEvent{
		UserID:     user.ID,
		ClientID:   client.ClientID,
		GrantType:  o.grantType,
		Scope:      result.Scope,
		JTI:        jti,
		OccurredAt: now,
	})
	return result, nil
}

// ClientCredentials runs the client_credentials grant: access token only,
// subject is the client id.
func (i *TokenIssuer) ClientCredentials(ctx context.Context, client *types.Client, secret, rawScope string) (*TokenResult, error) {
	if client == nil || !client.IsConfidential() {
		if client != nil && client.IsActive {
			return nil, types.NewOAuthError(types.ErrorUnauthorizedClient, "public clients cannot use client_credentials")
		}
		return nil, invalidClient()
	}
	if err := authenticateClient(i.hasher, client, secret); err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(types.GrantTypeClientCredentials) {
		return nil, types.NewOAuthError(types.ErrorUnauthorizedClient, "client is not allowed to use client_credentials")
	}

	requested := scope.Parse(rawScope)
	granted := scope.Normalize(client.AllowedScopes)
	if len(requested) > 0 {
		granted = scope.Intersect(requested, client.AllowedScopes)
		if len(granted) == 0 {
			return nil, types.NewOAuthError(types.ErrorInvalidScope, "requested scope is not allowed for this client")
		}
	}

	lifetimes, err := i.lifetimes.Resolve(client)
	if err != nil {
		i.logger.Error("token lifetime resolution failed", err, "client_id", client.ClientID)
	}
	now := i.clock.Now()
	jti := i.ids.UUID().String()
	access, err := i.signer.CreateAccessToken(ctx, types.AccessTokenClaims{
		Subject:   client.ClientID,
		ClientID:  client.ClientID,
		Scope:     scope.Format(granted),
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetimes.AccessToken),
	})
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	emitTokenHook(ctx, i.hooks, types.TokenEvent{
		ClientID:   client.ClientID,
		GrantType:  types.GrantTypeClientCredentials,
		Scope:      scope.Format(granted),
		JTI:        jti,
		OccurredAt: now,
	})
	return &TokenResult{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(lifetimes.AccessToken / time.Second),
		Scope:       scope.Format(granted),
		JTI:         jti,
		ClientID:    client.ClientID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(lifetimes.AccessToken),
	}, nil
}

func (i *TokenIssuer) newRefreshToken(user *types.User, client *types.Client, scopes []string, now time.Time, lifetimes Lifetimes) (types.RefreshToken, error) {
	value, err := randomToken(refreshBytes)
	if err != nil {
		return types.RefreshToken{}, err
	}
	return types.RefreshToken{
		Token:     value,
		ClientID:  client.ClientID,
		UserID:    user.ID,
		Scope:     scope.Format(scopes),
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetimes.RefreshToken),
	}, nil
}
