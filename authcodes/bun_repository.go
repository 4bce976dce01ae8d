// Package authcodes stores single use OAuth2 authorization codes with Bun.
package authcodes

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

// RepositoryConfig wires the Bun-backed authorization code repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
}

// Repository implements types.AuthorizationCodeRepository.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	db    *bun.DB
}

// NewRepository constructs the authorization code repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("authcodes: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		// Codes are keyed by their own value, so the uuid handlers are inert.
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*Record]{
			NewRecord: func() *Record { return &Record{} },
			GetID:     func(*Record) uuid.UUID { return uuid.Nil },
			SetID:     func(*Record, uuid.UUID) {},
		})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	db := cfg.DB
	if db == nil {
		if withDB, ok := repo.(interface{ DB() *bun.DB }); ok {
			db = withDB.DB()
		}
	}
	return &Repository{store: repo, clock: clock, db: db}, nil
}

var _ types.AuthorizationCodeRepository = (*Repository)(nil)

// Save persists a freshly issued code.
func (r *Repository) Save(ctx context.Context, code types.AuthorizationCode) error {
	if strings.TrimSpace(code.Code) == "" {
		return errors.New("authcodes: code required")
	}
	if code.UserID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	rec := fromDomain(code)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now()
	}
	_, err := r.store.Create(ctx, rec)
	return err
}

// GetByCode returns the stored code, or nil when unknown.
func (r *Repository) GetByCode(ctx context.Context, code string) (*types.AuthorizationCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	rec, err := r.store.Get(ctx, repository.SelectBy("code", "=", code))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return toDomain(rec), nil
}

// MarkAsUsed flips is_used for a code that has not been used yet. Concurrent
// exchanges of the same code race on this statement and only one wins.
func (r *Repository) MarkAsUsed(ctx context.Context, code string, usedAt time.Time) error {
	if r.db == nil {
		return errors.New("authcodes: db required for updates")
	}
	if usedAt.IsZero() {
		usedAt = r.clock.Now()
	}
	rec := &Record{IsUsed: true, UsedAt: &usedAt}
	res, err := r.db.NewUpdate().Model(rec).
		Column("is_used", "used_at").
		Where("code = ?", strings.TrimSpace(code)).
		Where("is_used = ?", false).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	if err := repository.SQLExpectedCount(res, 1); err != nil {
		if repository.IsSQLExpectedCountViolation(err) {
			return types.ErrStaleRecord
		}
		return err
	}
	return nil
}

// DeleteExpired removes codes that expired before cutoff.
func (r *Repository) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if r.db == nil {
		return 0, errors.New("authcodes: db required for deletes")
	}
	res, err := r.db.NewDelete().Model((*Record)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func fromDomain(code types.AuthorizationCode) *Record {
	return &Record{
		Code:                strings.TrimSpace(code.Code),
		ClientID:            code.ClientID,
		UserID:              code.UserID,
		RedirectURI:         code.RedirectURI,
		Scope:               code.Scope,
		Nonce:               code.Nonce,
		State:               code.State,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		CreatedAt:           code.CreatedAt,
		ExpiresAt:           code.ExpiresAt,
		IsUsed:              code.IsUsed,
		UsedAt:              timePtr(code.UsedAt),
	}
}

func toDomain(rec *Record) *types.AuthorizationCode {
	if rec == nil {
		return nil
	}
	return &types.AuthorizationCode{
		Code:                rec.Code,
		ClientID:            rec.ClientID,
		UserID:              rec.UserID,
		RedirectURI:         rec.RedirectURI,
		Scope:               rec.Scope,
		Nonce:               rec.Nonce,
		State:               rec.State,
		CodeChallenge:       rec.CodeChallenge,
		CodeChallengeMethod: rec.CodeChallengeMethod,
		CreatedAt:           rec.CreatedAt,
		ExpiresAt:           rec.ExpiresAt,
		IsUsed:              rec.IsUsed,
		UsedAt:              timeFromPtr(rec.UsedAt),
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
