package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/scope"
	"github.com/google/uuid"
)

// Activity verbs emitted by the authorization flow.
const (
	ActivityCodeIssued   = "oauth.code.issued"
	ActivityCodeReplay   = "oauth.code.replay"
	ActivityCodeExchange = "oauth.code.exchanged"
)

// FlowConfig wires the AuthorizationFlow.
type FlowConfig struct {
	Clients types.ClientRepository
	Codes   types.AuthorizationCodeRepository
	Users   types.UserRepository
	Issuer  *TokenIssuer
	// ClientHasher verifies confidential client secrets.
	ClientHasher types.PasswordHasher
	// CodeTTL defaults to ten minutes.
	CodeTTL  time.Duration
	Clock    types.Clock
	Logger   types.Logger
	Activity types.ActivitySink
	Hooks    types.Hooks
}

// AuthorizationFlow validates authorization requests, mints codes and
// redeems them for tokens.
type AuthorizationFlow struct {
	clients  types.ClientRepository
	codes    types.AuthorizationCodeRepository
	users    types.UserRepository
	issuer   *TokenIssuer
	hasher   types.PasswordHasher
	codeTTL  time.Duration
	clock    types.Clock
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

// NewAuthorizationFlow validates cfg and builds the flow.
func NewAuthorizationFlow(cfg FlowConfig) (*AuthorizationFlow, error) {
	switch {
	case cfg.Clients == nil:
		return nil, types.ErrMissingClientRepository
	case cfg.Codes == nil:
		return nil, types.ErrMissingCodeRepository
	case cfg.Users == nil:
		return nil, types.ErrMissingUserRepository
	case cfg.Issuer == nil:
		return nil, types.ErrServiceNotReady
	}
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = DefaultAuthorizationCodeTTL
	}
	return &AuthorizationFlow{
		clients:  cfg.Clients,
		codes:    cfg.Codes,
		users:    cfg.Users,
		issuer:   cfg.Issuer,
		hasher:   cfg.ClientHasher,
		codeTTL:  ttl,
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}, nil
}

// ValidateAuthorizationRequest checks an /authorize request without side
// effects. Checks run in order: client, redirect URI, response type, PKCE
// parameters, scope.
func (f *AuthorizationFlow) ValidateAuthorizationRequest(ctx context.Context, req AuthorizationRequest) (*ValidatedAuthorization, error) {
	client, err := loadClient(ctx, f.clients, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, types.NewOAuthError(types.ErrorInvalidRequest, "redirect_uri does not match a registered URI")
	}
	responseType := strings.TrimSpace(req.ResponseType)
	if responseType == "" || !client.SupportsResponseType(responseType) {
		return nil, types.NewOAuthError(types.ErrorUnsupportedResponseType, "response_type is not supported by this client")
	}

	method := ""
	if req.CodeChallenge != "" {
		method = normalizeChallengeMethod(req.CodeChallengeMethod)
		if method != types.CodeChallengeMethodS256 && method != types.CodeChallengeMethodPlain {
			return nil, types.NewOAuthError(types.ErrorInvalidRequest, "code_challenge_method must be S256 or plain")
		}
	} else if client.RequirePKCE {
		return nil, types.NewOAuthError(types.ErrorInvalidRequest, "code_challenge is required for this client")
	}

	requested := scope.Parse(req.Scope)
	granted := requested
	if len(requested) > 0 {
		granted = scope.Intersect(requested, client.AllowedScopes)
		if len(granted) == 0 {
			return nil, types.NewOAuthError(types.ErrorInvalidScope, "requested scope is not allowed for this client")
		}
	}

	return &ValidatedAuthorization{
		Client: ClientSummary{
			ClientID:     client.ClientID,
			Name:         client.Name,
			IsFirstParty: client.IsFirstParty,
		},
		RedirectURI:         req.RedirectURI,
		ResponseType:        responseType,
		Scope:               scope.Format(granted),
		State:               req.State,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	}, nil
}

// CreateAuthorizationCode persists a fresh code for an authenticated user who
// granted consent.
func (f *AuthorizationFlow) CreateAuthorizationCode(ctx context.Context, req CodeRequest) (string, error) {
	if req.UserID == uuid.Nil {
		return "", types.ErrUserIDRequired
	}
	if strings.TrimSpace(req.ClientID) == "" {
		return "", invalidClient()
	}
	value, err := randomToken(codeBytes)
	if err != nil {
		return "", types.NewServerError(err, "")
	}
	method := ""
	if req.CodeChallenge != "" {
		method = normalizeChallengeMethod(req.CodeChallengeMethod)
	}
	now := f.clock.Now()
	code := types.AuthorizationCode{
		Code:                value,
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope.Format(scope.Parse(req.Scope)),
		Nonce:               req.Nonce,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		CreatedAt:           now,
		ExpiresAt:           now.Add(f.codeTTL),
	}
	if err := f.codes.Save(ctx, code); err != nil {
		return "", types.NewServerError(err, "")
	}
	logActivity(ctx, f.activity, f.hooks, types.ActivityRecord{
		UserID:     req.UserID,
		ActorID:    req.UserID,
		Verb:       ActivityCodeIssued,
		ObjectType: "oauth_client",
		ObjectID:   req.ClientID,
		Channel:    "oauth",
		Data:       map[string]any{"scope": code.Scope},
		OccurredAt: now,
	})
	return value, nil
}

// ExchangeCode redeems an authorization code. Every code related failure is
// reported as the same invalid_grant.
func (f *AuthorizationFlow) ExchangeCode(ctx context.Context, req CodeExchange) (*TokenResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, types.NewOAuthError(types.ErrorInvalidRequest, "code is required")
	}
	now := f.clock.Now()
	code, err := f.codes.GetByCode(ctx, req.Code)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if code == nil || code.IsExpired(now) {
		return nil, types.NewInvalidGrant()
	}
	if code.IsUsed {
		f.reportReplay(ctx, code, now)
		return nil, types.NewInvalidGrant()
	}

	client, err := loadClient(ctx, f.clients, req.ClientID)
	if err != nil {
		return nil, err
	}
	if err := authenticateClient(f.hasher, client, req.ClientSecret); err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(types.GrantTypeAuthorizationCode) {
		return nil, types.NewOAuthError(types.ErrorUnauthorizedClient, "client is not allowed to use authorization_code")
	}
	if code.ClientID != client.ClientID {
		return nil, types.NewInvalidGrant()
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, types.NewInvalidGrant()
	}
	if !VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
		return nil, types.NewInvalidGrant()
	}

	if err := f.codes.MarkAsUsed(ctx, code.Code, now); err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			f.reportReplay(ctx, code, now)
			return nil, types.NewInvalidGrant()
		}
		return nil, types.NewServerError(err, "")
	}

	user, err := f.users.GetByID(ctx, code.UserID)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if user == nil || !user.IsActive {
		return nil, types.NewInvalidGrant()
	}

	result, err := f.issuer.GenerateTokens(ctx, user, client, code.Scope, code.Nonce,
		WithGrantType(types.GrantTypeAuthorizationCode))
	if err != nil {
		return nil, err
	}
	logActivity(ctx, f.activity, f.hooks, types.ActivityRecord{
		UserID:     user.ID,
		ActorID:    user.ID,
		Verb:       ActivityCodeExchange,
		ObjectType: "oauth_client",
		ObjectID:   client.ClientID,
		Channel:    "oauth",
		Data:       map[string]any{"scope": result.Scope, "jti": result.JTI},
		OccurredAt: now,
	})
	return result, nil
}

func (f *AuthorizationFlow) reportReplay(ctx context.Context, code *types.AuthorizationCode, now time.Time) {
	f.logger.Error("authorization code replay detected", types.ErrStaleRecord,
		"client_id", code.ClientID,
		"user_id", code.UserID.String(),
	)
	logActivity(ctx, f.activity, f.hooks, types.ActivityRecord{
		UserID:     code.UserID,
		Verb:       ActivityCodeReplay,
		ObjectType: "oauth_client",
		ObjectID:   code.ClientID,
		Channel:    "oauth",
		Data:       map[string]any{"code": code.Code},
		OccurredAt: now,
	})
}
