// Package tokens persists refresh token chains and the access token
// blacklist with Bun.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryConfig wires the Bun-backed refresh token repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*RefreshRecord]
	Clock      types.Clock
}

// Repository implements types.RefreshTokenRepository using Bun.
type Repository struct {
	store repository.Repository[*RefreshRecord]
	clock types.Clock
	db    *bun.DB
}

// NewRepository constructs the refresh token repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("tokens: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*RefreshRecord]{
			NewRecord: func() *RefreshRecord { return &RefreshRecord{} },
			GetID:     func(*RefreshRecord) uuid.UUID { return uuid.Nil },
			SetID:     func(*RefreshRecord, uuid.UUID) {},
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

var _ types.RefreshTokenRepository = (*Repository)(nil)

// Save persists a refresh token.
func (r *Repository) Save(ctx context.Context, token types.RefreshToken) error {
	rec, err := r.prepare(token)
	if err != nil {
		return err
	}
	_, err = r.store.Create(ctx, rec)
	return err
}

// GetByToken returns the stored refresh token, or nil when unknown.
func (r *Repository) GetByToken(ctx context.Context, token string) (*types.RefreshToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	rec, err := r.store.Get(ctx, repository.SelectBy("token", "=", token))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return refreshToDomain(rec), nil
}

// Revoke marks a token revoked. Revoking an already revoked or unknown token
// is a no-op.
func (r *Repository) Revoke(ctx context.Context, token string, revokedAt time.Time) error {
	if r.db == nil {
		return errors.New("tokens: db required for updates")
	}
	if revokedAt.IsZero() {
		revokedAt = r.clock.Now()
	}
	_, err := r.db.NewUpdate().Model(&RefreshRecord{IsRevoked: true, RevokedAt: &revokedAt}).
		Column("is_revoked", "revoked_at").
		Where("token = ?", strings.TrimSpace(token)).
		Where("is_revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// Rotate revokes current and stores next inside one transaction. When current
// was already revoked or expired the transaction is rolled back and
// types.ErrStaleRecord is returned.
func (r *Repository) Rotate(ctx context.Context, current string, next types.RefreshToken, rotatedAt time.Time) error {
	if r.db == nil {
		return errors.New("tokens: db required for updates")
	}
	if rotatedAt.IsZero() {
		rotatedAt = r.clock.Now()
	}
	current = strings.TrimSpace(current)
	next.ParentToken = current
	rec, err := r.prepare(next)
	if err != nil {
		return err
	}
	err = r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(&RefreshRecord{
			IsRevoked:  true,
			RevokedAt:  &rotatedAt,
			ReplacedBy: rec.Token,
		}).
			Column("is_revoked", "revoked_at", "replaced_by").
			Where("token = ?", current).
			Where("is_revoked = ?", false).
			Where("expires_at > ?", rotatedAt).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := repository.SQLExpectedCount(res, 1); err != nil {
			if repository.IsSQLExpectedCountViolation(err) {
				return types.ErrStaleRecord
			}
			return err
		}
		_, err = tx.NewInsert().Model(rec).Exec(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			return err
		}
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

// RevokeAllForUser revokes every live refresh token of the user.
func (r *Repository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) (int, error) {
	if r.db == nil {
		return 0, errors.New("tokens: db required for updates")
	}
	if userID == uuid.Nil {
		return 0, types.ErrUserIDRequired
	}
	if revokedAt.IsZero() {
		revokedAt = r.clock.Now()
	}
	res, err := r.db.NewUpdate().Model(&RefreshRecord{IsRevoked: true, RevokedAt: &revokedAt}).
		Column("is_revoked", "revoked_at").
		Where("user_id = ?", userID).
		Where("is_revoked = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) prepare(token types.RefreshToken) (*RefreshRecord, error) {
	if strings.TrimSpace(token.Token) == "" {
		return nil, errors.New("tokens: token required")
	}
	if token.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	rec := refreshFromDomain(token)
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = r.clock.Now()
	}
	return rec, nil
}

func refreshFromDomain(token types.RefreshToken) *RefreshRecord {
	return &RefreshRecord{
		Token:       strings.TrimSpace(token.Token),
		ClientID:    token.ClientID,
		UserID:      token.UserID,
		Scope:       token.Scope,
		IssuedAt:    token.IssuedAt,
		ExpiresAt:   token.ExpiresAt,
		IsRevoked:   token.IsRevoked,
		RevokedAt:   timePtr(token.RevokedAt),
		ReplacedBy:  token.ReplacedBy,
		ParentToken: token.ParentToken,
	}
}

func refreshToDomain(rec *RefreshRecord) *types.RefreshToken {
	if rec == nil {
		return nil
	}
	return &types.RefreshToken{
		Token:       rec.Token,
		ClientID:    rec.ClientID,
		UserID:      rec.UserID,
		Scope:       rec.Scope,
		IssuedAt:    rec.IssuedAt,
		ExpiresAt:   rec.ExpiresAt,
		IsRevoked:   rec.IsRevoked,
		RevokedAt:   timeFromPtr(rec.RevokedAt),
		ReplacedBy:  rec.ReplacedBy,
		ParentToken: rec.ParentToken,
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
