// Package clients stores registered OAuth2 clients with Bun.
package clients

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-repository-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrClientIDRequired is returned when saving a client without a client_id.
var ErrClientIDRequired = errors.New("clients: client_id required")

// RepositoryConfig wires the Bun-backed client repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.ClientRepository.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the client repository, optionally wrapping the
// record store with the go-repository-cache decorator.
func NewRepository(cfg RepositoryConfig, options ...RepositoryOption) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("clients: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = newRecordRepository(cfg.DB)
	}
	opts := applyRepositoryOptions(options)
	if opts.CacheEnabled {
		if _, cached := repo.(*repositorycache.CachedRepository[*Record]); !cached {
			cacheCfg := cache.DefaultConfig()
			if opts.CacheConfig != nil {
				cacheCfg = *opts.CacheConfig
			}
			svc, err := cache.NewCacheService(cacheCfg)
			if err != nil {
				return nil, err
			}
			repo = repositorycache.New(repo, svc, cache.NewDefaultKeySerializer())
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	return &Repository{store: repo, clock: clock, idGen: idGen}, nil
}

func newRecordRepository(db *bun.DB) repository.Repository[*Record] {
	return repository.NewRepository(db, repository.ModelHandlers[*Record]{
		NewRecord: func() *Record { return &Record{} },
		GetID: func(rec *Record) uuid.UUID {
			if rec == nil {
				return uuid.Nil
			}
			return rec.ID
		},
		SetID: func(rec *Record, id uuid.UUID) {
			if rec != nil {
				rec.ID = id
			}
		},
	})
}

var _ types.ClientRepository = (*Repository)(nil)

// GetByClientID returns the client registered under clientID, or nil.
func (r *Repository) GetByClientID(ctx context.Context, clientID string) (*types.Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, nil
	}
	rec, err := r.store.Get(ctx, repository.SelectBy("client_id", "=", clientID))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// Create registers a client. SecretHash must already be hashed.
func (r *Repository) Create(ctx context.Context, client types.Client) (*types.Client, error) {
	if strings.TrimSpace(client.ClientID) == "" {
		return nil, ErrClientIDRequired
	}
	rec := fromDomain(client)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.ClientType == "" {
		rec.ClientType = string(types.ClientTypeConfidential)
	}
	now := r.clock.Now()
	rec.CreatedAt = timePtr(now)
	rec.UpdatedAt = timePtr(now)
	created, err := r.store.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(created), nil
}

// Update overwrites the stored client matched by ID.
func (r *Repository) Update(ctx context.Context, client types.Client) (*types.Client, error) {
	if client.ID == uuid.Nil {
		return nil, errors.New("clients: id required for update")
	}
	rec := fromDomain(client)
	if rec.CreatedAt == nil {
		existing, err := r.store.Get(ctx, repository.SelectBy("id", "=", client.ID.String()))
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = existing.CreatedAt
	}
	rec.UpdatedAt = timePtr(r.clock.Now())
	updated, err := r.store.Update(ctx, rec)
	if err != nil {
		return nil, err
	}
	return toDomain(updated), nil
}

func fromDomain(client types.Client) *Record {
	return &Record{
		ID:                     client.ID,
		ClientID:               strings.TrimSpace(client.ClientID),
		Name:                   client.Name,
		SecretHash:             client.SecretHash,
		ClientType:             string(client.Type),
		RedirectURIs:           nonNil(client.RedirectURIs),
		AllowedScopes:          nonNil(client.AllowedScopes),
		GrantTypes:             nonNil(client.GrantTypes),
		ResponseTypes:          nonNil(client.ResponseTypes),
		AccessTokenTTLSeconds:  int64(client.AccessTokenTTL / time.Second),
		IDTokenTTLSeconds:      int64(client.IDTokenTTL / time.Second),
		RefreshTokenTTLSeconds: int64(client.RefreshTokenTTL / time.Second),
		IsFirstParty:           client.IsFirstParty,
		IsActive:               client.IsActive,
		RequirePKCE:            client.RequirePKCE,
		CreatedAt:              timePtr(client.CreatedAt),
		UpdatedAt:              timePtr(client.UpdatedAt),
	}
}

func toDomain(rec *Record) *types.Client {
	if rec == nil {
		return nil
	}
	return &types.Client{
		ID:              rec.ID,
		ClientID:        rec.ClientID,
		Name:            rec.Name,
		SecretHash:      rec.SecretHash,
		Type:            types.ClientType(rec.ClientType),
		RedirectURIs:    append([]string(nil), rec.RedirectURIs...),
		AllowedScopes:   append([]string(nil), rec.AllowedScopes...),
		GrantTypes:      append([]string(nil), rec.GrantTypes...),
		ResponseTypes:   append([]string(nil), rec.ResponseTypes...),
		AccessTokenTTL:  time.Duration(rec.AccessTokenTTLSeconds) * time.Second,
		IDTokenTTL:      time.Duration(rec.IDTokenTTLSeconds) * time.Second,
		RefreshTokenTTL: time.Duration(rec.RefreshTokenTTLSeconds) * time.Second,
		IsFirstParty:    rec.IsFirstParty,
		IsActive:        rec.IsActive,
		RequirePKCE:     rec.RequirePKCE,
		CreatedAt:       timeFromPtr(rec.CreatedAt),
		UpdatedAt:       timeFromPtr(rec.UpdatedAt),
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func timePtr(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	copy := value
	return &copy
}

func timeFromPtr(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return *value
}
