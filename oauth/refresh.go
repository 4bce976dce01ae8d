package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/scope"
)

// Activity verbs emitted by refresh token rotation.
const (
	ActivityRefreshRotated       = "oauth.refresh.rotated"
	ActivityRefreshReuseDetected = "oauth.refresh.reuse_detected"
)

// maxChainWalk bounds the cascade walk over a rotation chain.
const maxChainWalk = 1000

// RotatorConfig wires the RefreshTokenRotator.
type RotatorConfig struct {
	Clients       types.ClientRepository
	RefreshTokens types.RefreshTokenRepository
	Users         types.UserRepository
	Issuer        *TokenIssuer
	ClientHasher  types.PasswordHasher
	Clock         types.Clock
	Logger        types.Logger
	Activity      types.ActivitySink
	Hooks         types.Hooks
}

// RefreshTokenRotator handles the refresh_token grant. Every use rotates the
// token; replaying a rotated token revokes the rest of its chain.
type RefreshTokenRotator struct {
	clients  types.ClientRepository
	tokens   types.RefreshTokenRepository
	users    types.UserRepository
	issuer   *TokenIssuer
	hasher   types.PasswordHasher
	clock    types.Clock
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

// NewRefreshTokenRotator validates cfg and builds the rotator.
func NewRefreshTokenRotator(cfg RotatorConfig) (*RefreshTokenRotator, error) {
	switch {
	case cfg.Clients == nil:
		return nil, types.ErrMissingClientRepository
	case cfg.RefreshTokens == nil:
		return nil, types.ErrMissingRefreshTokenRepository
	case cfg.Users == nil:
		return nil, types.ErrMissingUserRepository
	case cfg.Issuer == nil:
		return nil, types.ErrServiceNotReady
	}
	return &RefreshTokenRotator{
		clients:  cfg.Clients,
		tokens:   cfg.RefreshTokens,
		users:    cfg.Users,
		issuer:   cfg.Issuer,
		hasher:   cfg.ClientHasher,
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}, nil
}

// Refresh exchanges a live refresh token for a new token set. The presented
// token is revoked and linked to its successor in the same storage write.
func (r *RefreshTokenRotator) Refresh(ctx context.Context, req RefreshRequest) (*TokenResult, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, types.NewOAuthError(types.ErrorInvalidRequest, "refresh_token is required")
	}
	now := r.clock.Now()
	current, err := r.tokens.GetByToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if current == nil {
		return nil, types.NewInvalidGrant()
	}
	if current.IsRevoked {
		if current.ReplacedBy != "" {
			r.revokeChain(ctx, current, now)
		}
		return nil, types.NewInvalidGrant()
	}
	if current.IsExpired(now) {
		return nil, types.NewInvalidGrant()
	}

	client, err := loadClient(ctx, r.clients, req.ClientID)
	if err != nil {
		return nil, err
	}
	if client.ClientID != current.ClientID {
		return nil, types.NewInvalidGrant()
	}
	if err := authenticateClient(r.hasher, client, req.ClientSecret); err != nil {
		return nil, err
	}
	if !client.SupportsGrantType(types.GrantTypeRefreshToken) {
		return nil, types.NewOAuthError(types.ErrorUnauthorizedClient, "client is not allowed to use refresh_token")
	}

	original := scope.Parse(current.Scope)
	granted := original
	if requested := scope.Parse(req.Scope); len(requested) > 0 {
		granted = scope.Union(requested, []string{types.ScopeOfflineAccess})
		if !scope.Subset(granted, original) {
			return nil, types.NewOAuthError(types.ErrorInvalidScope, "requested scope exceeds the original grant")
		}
	}

	user, err := r.users.GetByID(ctx, current.UserID)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if user == nil || !user.IsActive {
		return nil, types.NewInvalidGrant()
	}

	lifetimes, err := r.issuer.lifetimes.Resolve(client)
	if err != nil {
		r.logger.Error("token lifetime resolution failed", err, "client_id", client.ClientID)
	}
	next, err := r.issuer.newRefreshToken(user, client, granted, now, lifetimes)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if err := r.tokens.Rotate(ctx, current.Token, next, now); err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			return nil, types.NewInvalidGrant()
		}
		return nil, types.NewServerError(err, "")
	}

	result, err := r.issuer.GenerateTokens(ctx, user, client, scope.Format(granted), "",
		WithGrantType(types.GrantTypeRefreshToken),
		withRotatedRefresh(next),
	)
	if err != nil {
		return nil, err
	}
	logActivity(ctx, r.activity, r.hooks, types.ActivityRecord{
		UserID:     user.ID,
		ActorID:    user.ID,
		Verb:       ActivityRefreshRotated,
		ObjectType: "oauth_client",
		ObjectID:   client.ClientID,
		Channel:    "oauth",
		Data:       map[string]any{"scope": result.Scope},
		OccurredAt: now,
	})
	return result, nil
}

// revokeChain walks ReplacedBy from a replayed token and revokes every live
// descendant.
func (r *RefreshTokenRotator) revokeChain(ctx context.Context, replayed *types.RefreshToken, now time.Time) {
	revoked := 0
	seen := map[string]struct{}{replayed.Token: {}}
	next := replayed.ReplacedBy
	for i := 0; next != "" && i < maxChainWalk; i++ {
		if _, ok := seen[next]; ok {
			break
		}
		seen[next] = struct{}{}
		token, err := r.tokens.GetByToken(ctx, next)
		if err != nil {
			r.logger.Error("refresh chain lookup failed", err, "client_id", replayed.ClientID)
			break
		}
		if token == nil {
			break
		}
		if !token.IsRevoked {
			if err := r.tokens.Revoke(ctx, token.Token, now); err != nil {
				r.logger.Error("refresh chain revoke failed", err, "client_id", replayed.ClientID)
			} else {
				revoked++
			}
		}
		next = token.ReplacedBy
	}
	r.logger.Error("refresh token reuse detected", types.ErrStaleRecord,
		"client_id", replayed.ClientID,
		"user_id", replayed.UserID.String(),
		"revoked", revoked,
	)
	logActivity(ctx, r.activity, r.hooks, types.ActivityRecord{
		UserID:     replayed.UserID,
		Verb:       ActivityRefreshReuseDetected,
		ObjectType: "oauth_client",
		ObjectID:   replayed.ClientID,
		Channel:    "oauth",
		Data:       map[string]any{"revoked": revoked},
		OccurredAt: now,
	})
}
