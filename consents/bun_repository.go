// Package consents stores per client consent grants with Bun.
package consents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed consent repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.ConsentRepository.
type Repository struct {
	store repository.Repository[*Record]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the consent repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("consents: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
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
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
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
	return &Repository{store: repo, db: db, clock: clock, idGen: idGen}, nil
}

var _ types.ConsentRepository = (*Repository)(nil)

// GetByUserAndClient returns the consent for the pair, or nil.
func (r *Repository) GetByUserAndClient(ctx context.Context, userID uuid.UUID, clientID string) (*types.Consent, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec, err := r.store.Get(ctx, selectPair(userID, clientID))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// Save upserts the consent for (user, client), replacing scopes and expiry.
func (r *Repository) Save(ctx context.Context, consent types.Consent) (*types.Consent, error) {
	if r.db == nil {
		return nil, errors.New("consents: db required for upserts")
	}
	if consent.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := fromDomain(consent)
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.GrantedAt.IsZero() {
		rec.GrantedAt = r.clock.Now()
	}
	_, err := r.db.NewInsert().Model(rec).
		On("CONFLICT (user_id, client_id) DO UPDATE").
		Set("scopes = EXCLUDED.scopes").
		Set("remember = EXCLUDED.remember").
		Set("granted_at = EXCLUDED.granted_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return r.GetByUserAndClient(ctx, consent.UserID, consent.ClientID)
}

// Delete removes the consent for the pair. Missing rows are not an error.
func (r *Repository) Delete(ctx context.Context, userID uuid.UUID, clientID string) error {
	if r.db == nil {
		return errors.New("consents: db required for deletes")
	}
	_, err := r.db.NewDelete().Model((*Record)(nil)).
		Where("user_id = ?", userID).
		Where("client_id = ?", strings.TrimSpace(clientID)).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

func selectPair(userID uuid.UUID, clientID string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("user_id = ?", userID).Where("client_id = ?", strings.TrimSpace(clientID))
	}
}

func fromDomain(consent types.Consent) *Record {
	scopes := consent.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return &Record{
		ID:        consent.ID,
		UserID:    consent.UserID,
		ClientID:  strings.TrimSpace(consent.ClientID),
		Scopes:    scopes,
		Remember:  consent.Remember,
		GrantedAt: consent.GrantedAt,
		ExpiresAt: timePtr(consent.ExpiresAt),
	}
}

func toDomain(rec *Record) *types.Consent {
	if rec == nil {
		return nil
	}
	return &types.Consent{
		ID:        rec.ID,
		UserID:    rec.UserID,
		ClientID:  rec.ClientID,
		Scopes:    append([]string(nil), rec.Scopes...),
		Remember:  rec.Remember,
		GrantedAt: rec.GrantedAt,
		ExpiresAt: timeFromPtr(rec.ExpiresAt),
	}
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
