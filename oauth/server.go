package oauth

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/scope"
	"github.com/google/uuid"
)

// ActivityTokenRevoked is emitted when a token is revoked through RFC7009.
const ActivityTokenRevoked = "oauth.token.revoked"

// ServerConfig wires the OAuth2 facade.
type ServerConfig struct {
	Flow          *AuthorizationFlow
	Rotator       *RefreshTokenRotator
	Issuer        *TokenIssuer
	Consents      *ConsentTracker
	Clients       types.ClientRepository
	Users         types.UserRepository
	RefreshTokens types.RefreshTokenRepository
	Blacklist     types.TokenBlacklistRepository
	Signer        types.Signer
	ClientHasher  types.PasswordHasher
	Clock         types.Clock
	Logger        types.Logger
	Activity      types.ActivitySink
	Hooks         types.Hooks
}

// Server composes the grant handlers with introspection, revocation and
// userinfo.
type Server struct {
	flow      *AuthorizationFlow
	rotator   *RefreshTokenRotator
	issuer    *TokenIssuer
	consents  *ConsentTracker
	clients   types.ClientRepository
	users     types.UserRepository
	tokens    types.RefreshTokenRepository
	blacklist types.TokenBlacklistRepository
	signer    types.Signer
	hasher    types.PasswordHasher
	clock     types.Clock
	logger    types.Logger
	activity  types.ActivitySink
	hooks     types.Hooks
}

// NewServer validates cfg and builds the facade.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Flow == nil, cfg.Rotator == nil, cfg.Issuer == nil:
		return nil, types.ErrServiceNotReady
	case cfg.Signer == nil:
		return nil, types.ErrMissingSigner
	case cfg.RefreshTokens == nil:
		return nil, types.ErrMissingRefreshTokenRepository
	case cfg.Clients == nil:
		return nil, types.ErrMissingClientRepository
	case cfg.Users == nil:
		return nil, types.ErrMissingUserRepository
	case cfg.Blacklist == nil:
		return nil, types.ErrMissingBlacklistRepository
	}
	return &Server{
		flow:      cfg.Flow,
		rotator:   cfg.Rotator,
		issuer:    cfg.Issuer,
		consents:  cfg.Consents,
		clients:   cfg.Clients,
		users:     cfg.Users,
		tokens:    cfg.RefreshTokens,
		blacklist: cfg.Blacklist,
		signer:    cfg.Signer,
		hasher:    cfg.ClientHasher,
		clock:     safeClock(cfg.Clock),
		logger:    safeLogger(cfg.Logger),
		activity:  cfg.Activity,
		hooks:     cfg.Hooks,
	}, nil
}

// Flow exposes the authorization code flow for /authorize handlers.
func (s *Server) Flow() *AuthorizationFlow {
	return s.flow
}

// Consents exposes the consent tracker, nil when not configured.
func (s *Server) Consents() *ConsentTracker {
	return s.consents
}

// Token dispatches a token endpoint request by grant type.
func (s *Server) Token(ctx context.Context, req TokenRequest) (*TokenResult, error) {
	switch strings.TrimSpace(req.GrantType) {
	case types.GrantTypeAuthorizationCode:
		return s.flow.ExchangeCode(ctx, CodeExchange{
			Code:         req.Code,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RedirectURI:  req.RedirectURI,
			CodeVerifier: req.CodeVerifier,
		})
	case types.GrantTypeRefreshToken:
		return s.rotator.Refresh(ctx, RefreshRequest{
			RefreshToken: req.RefreshToken,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			Scope:        req.Scope,
		})
	case types.GrantTypeClientCredentials:
		client, err := loadClient(ctx, s.clients, req.ClientID)
		if err != nil {
			return nil, err
		}
		return s.issuer.ClientCredentials(ctx, client, req.ClientSecret, req.Scope)
	case "":
		return nil, types.NewOAuthError(types.ErrorInvalidRequest, "grant_type is required")
	default:
		return nil, types.NewOAuthError(types.ErrorUnsupportedGrantType, "grant_type is not supported")
	}
}

// IntrospectForClient authenticates the calling client, as Revoke does, and
// then introspects the token. Only client authentication can fail.
func (s *Server) IntrospectForClient(ctx context.Context, req IntrospectionRequest) (IntrospectionResponse, error) {
	client, err := loadClient(ctx, s.clients, req.ClientID)
	if err != nil {
		return IntrospectionResponse{}, err
	}
	if err := authenticateClient(s.hasher, client, req.ClientSecret); err != nil {
		return IntrospectionResponse{}, err
	}
	return s.Introspect(ctx, req.Token, req.TokenTypeHint), nil
}

// Introspect answers RFC7662 requests. Any token that cannot be verified,
// has expired or was revoked is reported as inactive. It does not
// authenticate the caller; use IntrospectForClient unless the transport
// already protects the endpoint.
func (s *Server) Introspect(ctx context.Context, token, hint string) IntrospectionResponse {
	token = strings.TrimSpace(token)
	if token == "" {
		return IntrospectionResponse{}
	}
	if hint == TokenHintRefreshToken {
		if resp, ok := s.introspectRefresh(ctx, token); ok {
			return resp
		}
		resp, _ := s.introspectAccess(ctx, token)
		return resp
	}
	if resp, ok := s.introspectAccess(ctx, token); ok {
		return resp
	}
	resp, _ := s.introspectRefresh(ctx, token)
	return resp
}

func (s *Server) introspectAccess(ctx context.Context, token string) (IntrospectionResponse, bool) {
	decoded, ok := s.decodeAccess(ctx, token)
	if !ok {
		return IntrospectionResponse{}, false
	}
	resp := IntrospectionResponse{
		Active:    true,
		Scope:     decoded.Scope,
		ClientID:  decoded.ClientID,
		TokenType: TokenTypeBearer,
		Exp:       unix(decoded.ExpiresAt.Unix(), decoded.ExpiresAt.IsZero()),
		Iat:       unix(decoded.IssuedAt.Unix(), decoded.IssuedAt.IsZero()),
		Nbf:       unix(decoded.NotBefore.Unix(), decoded.NotBefore.IsZero()),
		Sub:       decoded.Subject,
		Aud:       decoded.Audience,
		Iss:       decoded.Issuer,
		Jti:       decoded.JTI,
	}
	if user := s.userForSubject(ctx, decoded.Subject); user != nil {
		resp.Username = firstNonEmpty(user.Username, user.Email)
	}
	return resp, true
}

func (s *Server) introspectRefresh(ctx context.Context, token string) (IntrospectionResponse, bool) {
	stored, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		s.logger.Error("refresh token introspection failed", err)
		return IntrospectionResponse{}, false
	}
	if stored == nil || !stored.IsValid(s.clock.Now()) {
		return IntrospectionResponse{}, false
	}
	return IntrospectionResponse{
		Active:    true,
		Scope:     stored.Scope,
		ClientID:  stored.ClientID,
		TokenType: TokenHintRefreshToken,
		Exp:       stored.ExpiresAt.Unix(),
		Iat:       stored.IssuedAt.Unix(),
		Sub:       stored.UserID.String(),
		Iss:       s.signer.Issuer(),
	}, true
}

// Revoke implements RFC7009. Unknown tokens and tokens issued to another
// client succeed without effect.
func (s *Server) Revoke(ctx context.Context, req RevocationRequest) error {
	client, err := loadClient(ctx, s.clients, req.ClientID)
	if err != nil {
		return err
	}
	if err := authenticateClient(s.hasher, client, req.ClientSecret); err != nil {
		return err
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return types.NewOAuthError(types.ErrorInvalidRequest, "token is required")
	}
	if req.TokenTypeHint == TokenHintAccessToken {
		if handled, err := s.revokeAccess(ctx, client, token); handled || err != nil {
			return err
		}
		_, err := s.revokeRefresh(ctx, client, token)
		return err
	}
	if handled, err := s.revokeRefresh(ctx, client, token); handled || err != nil {
		return err
	}
	_, err = s.revokeAccess(ctx, client, token)
	return err
}

func (s *Server) revokeRefresh(ctx context.Context, client *types.Client, token string) (bool, error) {
	stored, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		return false, types.NewServerError(err, "")
	}
	if stored == nil {
		return false, nil
	}
	if stored.ClientID != client.ClientID {
		s.logger.Debug("refresh token revocation by foreign client ignored", "client_id", client.ClientID)
		return true, nil
	}
	now := s.clock.Now()
	if err := s.tokens.Revoke(ctx, stored.Token, now); err != nil {
		return true, types.NewServerError(err, "")
	}
	s.recordRevocation(ctx, stored.UserID, client.ClientID, TokenHintRefreshToken)
	return true, nil
}

func (s *Server) revokeAccess(ctx context.Context, client *types.Client, token string) (bool, error) {
	decoded, err := s.signer.DecodeToken(ctx, token)
	if err != nil || decoded.Use != types.TokenUseAccess || decoded.JTI == "" {
		return false, nil
	}
	if decoded.ClientID != client.ClientID {
		s.logger.Debug("access token revocation by foreign client ignored", "client_id", client.ClientID)
		return true, nil
	}
	if err := s.blacklist.Add(ctx, types.TokenBlacklistEntry{
		JTI:       decoded.JTI,
		RevokedAt: s.clock.Now(),
		Reason:    "revoked by client",
		ExpiresAt: decoded.ExpiresAt,
	}); err != nil {
		return true, types.NewServerError(err, "")
	}
	userID, _ := uuid.Parse(decoded.Subject)
	s.recordRevocation(ctx, userID, client.ClientID, TokenHintAccessToken)
	return true, nil
}

func (s *Server) recordRevocation(ctx context.Context, userID uuid.UUID, clientID, kind string) {
	logActivity(ctx, s.activity, s.hooks, types.ActivityRecord{
		UserID:     userID,
		Verb:       ActivityTokenRevoked,
		ObjectType: "oauth_client",
		ObjectID:   clientID,
		Channel:    "oauth",
		Data:       map[string]any{"token_type": kind},
		OccurredAt: s.clock.Now(),
	})
}

// UserInfo returns the claims of the token subject filtered by the token
// scope. The token must carry openid.
func (s *Server) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	decoded, ok := s.decodeAccess(ctx, accessToken)
	if !ok {
		return nil, types.NewAuthError(types.ErrorInvalidToken, "the access token is invalid")
	}
	granted := scope.Parse(decoded.Scope)
	if !scope.Contains(granted, types.ScopeOpenID) {
		return nil, types.NewOAuthError(types.ErrorInsufficientScope, "the access token lacks the openid scope").
			WithCode(goerrors.CodeForbidden)
	}
	user := s.userForSubject(ctx, decoded.Subject)
	if user == nil || !user.IsActive {
		return nil, types.NewAuthError(types.ErrorInvalidToken, "the access token is invalid")
	}
	return UserInfoClaims(user, granted), nil
}

func (s *Server) decodeAccess(ctx context.Context, token string) (*types.DecodedToken, bool) {
	decoded, err := s.signer.DecodeToken(ctx, token)
	if err != nil || decoded == nil || decoded.Use != types.TokenUseAccess {
		return nil, false
	}
	if decoded.JTI != "" {
		blacklisted, err := s.blacklist.IsBlacklisted(ctx, decoded.JTI)
		if err != nil {
			s.logger.Error("blacklist lookup failed", err, "jti", decoded.JTI)
			return nil, false
		}
		if blacklisted {
			return nil, false
		}
	}
	return decoded, true
}

func (s *Server) userForSubject(ctx context.Context, subject string) *types.User {
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("subject lookup failed", err, "sub", subject)
		return nil
	}
	return user
}

// ErrorResponseFrom renders err as an RFC6749 error body. Errors without a
// text code become server_error with a generic description.
func ErrorResponseFrom(err error) ErrorResponse {
	code := types.ErrorCode(err)
	if code == "" || code == types.ErrorServerError {
		return ErrorResponse{
			Error:            types.ErrorServerError,
			ErrorDescription: "the server encountered an unexpected condition",
		}
	}
	return ErrorResponse{Error: code, ErrorDescription: types.ErrorDescription(err)}
}

// StatusFrom returns the HTTP status carried by err.
func StatusFrom(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

func unix(value int64, zero bool) int64 {
	if zero {
		return 0
	}
	return value
}
