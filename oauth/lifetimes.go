package oauth

import (
	"fmt"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	opts "github.com/goliatone/go-options"
)

const (
	lifetimeAccessKey  = "access_token_ttl"
	lifetimeIDKey      = "id_token_ttl"
	lifetimeRefreshKey = "refresh_token_ttl"

	lifetimeScopeServer = "server"
	lifetimeScopeClient = "client"
)

// Default lifetimes applied when neither the server nor the client set one.
const (
	DefaultAccessTokenTTL       = time.Hour
	DefaultIDTokenTTL           = time.Hour
	DefaultRefreshTokenTTL      = 30 * 24 * time.Hour
	DefaultAuthorizationCodeTTL = 10 * time.Minute
)

// Lifetimes are the effective token lifetimes for one client.
type Lifetimes struct {
	AccessToken  time.Duration
	IDToken      time.Duration
	RefreshToken time.Duration
}

// LifetimeResolver layers client overrides over the server defaults.
type LifetimeResolver struct {
	defaults Lifetimes
}

// NewLifetimeResolver builds a resolver. Zero durations fall back to the
// package defaults.
func NewLifetimeResolver(defaults Lifetimes) *LifetimeResolver {
	if defaults.AccessToken <= 0 {
		defaults.AccessToken = DefaultAccessTokenTTL
	}
	if defaults.IDToken <= 0 {
		defaults.IDToken = DefaultIDTokenTTL
	}
	if defaults.RefreshToken <= 0 {
		defaults.RefreshToken = DefaultRefreshTokenTTL
	}
	return &LifetimeResolver{defaults: defaults}
}

// Defaults returns the server level lifetimes.
func (r *LifetimeResolver) Defaults() Lifetimes {
	return r.defaults
}

// Resolve merges the server layer with the non-zero lifetimes configured on
// client.
func (r *LifetimeResolver) Resolve(client *types.Client) (Lifetimes, error) {
	serverScope := opts.NewScope(lifetimeScopeServer, opts.ScopePrioritySystem,
		opts.WithScopeLabel("Server"))
	layers := []opts.Layer[map[string]any]{
		opts.NewLayer(serverScope, lifetimePayload(r.defaults),
			opts.WithSnapshotID[map[string]any](serverScope.Name)),
	}
	if client != nil {
		overrides := lifetimePayload(Lifetimes{
			AccessToken:  client.AccessTokenTTL,
			IDToken:      client.IDTokenTTL,
			RefreshToken: client.RefreshTokenTTL,
		})
		if len(overrides) > 0 {
			clientScope := opts.NewScope(lifetimeScopeClient, opts.ScopePriorityTenant,
				opts.WithScopeLabel("Client"),
				opts.WithScopeMetadata(map[string]any{"client_id": client.ClientID}))
			layers = append(layers, opts.NewLayer(clientScope, overrides,
				opts.WithSnapshotID[map[string]any](clientScope.Name)))
		}
	}

	stack, err := opts.NewStack(layers...)
	if err != nil {
		return r.defaults, fmt.Errorf("oauth: lifetime stack: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return r.defaults, fmt.Errorf("oauth: lifetime merge: %w", err)
	}
	return Lifetimes{
		AccessToken:  durationValue(merged.Value[lifetimeAccessKey], r.defaults.AccessToken),
		IDToken:      durationValue(merged.Value[lifetimeIDKey], r.defaults.IDToken),
		RefreshToken: durationValue(merged.Value[lifetimeRefreshKey], r.defaults.RefreshToken),
	}, nil
}

func lifetimePayload(l Lifetimes) map[string]any {
	payload := map[string]any{}
	if l.AccessToken > 0 {
		payload[lifetimeAccessKey] = int64(l.AccessToken)
	}
	if l.IDToken > 0 {
		payload[lifetimeIDKey] = int64(l.IDToken)
	}
	if l.RefreshToken > 0 {
		payload[lifetimeRefreshKey] = int64(l.RefreshToken)
	}
	return payload
}

func durationValue(value any, fallback time.Duration) time.Duration {
	var d time.Duration
	switch v := value.(type) {
	case time.Duration:
		d = v
	case int64:
		d = time.Duration(v)
	case int:
		d = time.Duration(v)
	case float64:
		d = time.Duration(v)
	}
	if d <= 0 {
		return fallback
	}
	return d
}
