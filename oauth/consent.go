package oauth

import (
	"context"
	"strings"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/scope"
	"github.com/google/uuid"
)

// Activity verbs emitted by consent changes.
const (
	ActivityConsentGranted = "oauth.consent.granted"
	ActivityConsentRevoked = "oauth.consent.revoked"
)

// ConsentConfig wires the ConsentTracker.
type ConsentConfig struct {
	Consents types.ConsentRepository
	Clock    types.Clock
	Activity types.ActivitySink
	Hooks    types.Hooks
}

// ConsentTracker records which scopes a user approved per client.
type ConsentTracker struct {
	consents types.ConsentRepository
	clock    types.Clock
	activity types.ActivitySink
	hooks    types.Hooks
}

// NewConsentTracker validates cfg and builds the tracker.
func NewConsentTracker(cfg ConsentConfig) (*ConsentTracker, error) {
	if cfg.Consents == nil {
		return nil, types.ErrMissingConsentRepository
	}
	return &ConsentTracker{
		consents: cfg.Consents,
		clock:    safeClock(cfg.Clock),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}, nil
}

// NeedsConsent reports whether the user must approve rawScope for client.
// First-party clients never need consent.
func (t *ConsentTracker) NeedsConsent(ctx context.Context, userID uuid.UUID, client *types.Client, rawScope string) (bool, error) {
	if client == nil {
		return false, invalidClient()
	}
	if client.IsFirstParty {
		return false, nil
	}
	if userID == uuid.Nil {
		return false, types.ErrUserIDRequired
	}
	consent, err := t.consents.GetByUserAndClient(ctx, userID, client.ClientID)
	if err != nil {
		return false, err
	}
	if consent == nil || consent.IsExpired(t.clock.Now()) {
		return true, nil
	}
	return !consent.CoversScopes(scope.Parse(rawScope)), nil
}

// SaveConsent merges rawScope into the stored grant. Without remember the
// consent expires immediately and only covers the in-flight authorization;
// a live remembered grant is then left as stored.
func (t *ConsentTracker) SaveConsent(ctx context.Context, userID uuid.UUID, clientID, rawScope string, remember bool) (*types.Consent, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, invalidClient()
	}
	existing, err := t.consents.GetByUserAndClient(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	now := t.clock.Now()
	scopes := scope.Parse(rawScope)
	if existing != nil && !existing.IsExpired(now) {
		scopes = scope.Union(existing.Scopes, scopes)
	}
	consent := types.Consent{
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    scopes,
		Remember:  remember,
		GrantedAt: now,
	}
	if !remember {
		consent.ExpiresAt = now
	}
	saved := &consent
	if remember || existing == nil || existing.IsExpired(now) || !existing.Remember {
		saved, err = t.consents.Save(ctx, consent)
		if err != nil {
			return nil, err
		}
	}
	logActivity(ctx, t.activity, t.hooks, types.ActivityRecord{
		UserID:     userID,
		ActorID:    userID,
		Verb:       ActivityConsentGranted,
		ObjectType: "oauth_client",
		ObjectID:   clientID,
		Channel:    "oauth",
		Data:       map[string]any{"scope": scope.Format(scopes), "remember": remember},
		OccurredAt: now,
	})
	return saved, nil
}

// RevokeConsent forgets every scope the user approved for clientID.
func (t *ConsentTracker) RevokeConsent(ctx context.Context, userID uuid.UUID, clientID string) error {
	if userID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	if err := t.consents.Delete(ctx, userID, clientID); err != nil {
		return err
	}
	logActivity(ctx, t.activity, t.hooks, types.ActivityRecord{
		UserID:     userID,
		ActorID:    userID,
		Verb:       ActivityConsentRevoked,
		ObjectType: "oauth_client",
		ObjectID:   clientID,
		Channel:    "oauth",
		OccurredAt: t.clock.Now(),
	})
	return nil
}
