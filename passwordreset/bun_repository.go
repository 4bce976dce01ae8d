// Package passwordreset stores single use password reset tokens with Bun.
package passwordreset

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

// RepositoryConfig wires the Bun-backed password reset repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
}

// Repository implements types.PasswordResetRepository using Bun.
type Repository struct {
	store repository.Repository[*Record]
	clock types.Clock
	db    *bun.DB
}

// NewRepository constructs the default password reset repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("passwordreset: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
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

var _ types.PasswordResetRepository = (*Repository)(nil)

// Save persists a reset token.
func (r *Repository) Save(ctx context.Context, token types.PasswordResetToken) error {
	if token.UserID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	rec := fromDomain(token)
	if rec.Token == "" {
		return errors.New("passwordreset: token required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock.Now()
	}
	_, err := r.store.Create(ctx, rec)
	return err
}

// GetByToken returns the stored token, or nil when unknown.
func (r *Repository) GetByToken(ctx context.Context, token string) (*types.PasswordResetToken, error) {
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
	return toDomain(rec), nil
}

// MarkAsUsed consumes the token, enforcing single-use semantics.
func (r *Repository) MarkAsUsed(ctx context.Context, token string, usedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("passwordreset: db required for updates")
	}
	normalized := strings.TrimSpace(token)
	if normalized == "" {
		return errors.New("passwordreset: token required")
	}
	if usedAt.IsZero() {
		usedAt = r.clock.Now()
	}
	rec := &Record{IsUsed: true, UsedAt: timePtr(usedAt)}
	res, err := r.db.NewUpdate().Model(rec).
		Column("is_used", "used_at").
		Where("token = ?", normalized).
		Where("is_used = ?", false).
		Where("expires_at > ?", usedAt).
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

// DeleteForUser drops every reset token of the user so that only the newest
// request stays redeemable.
func (r *Repository) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	if r == nil || r.db == nil {
		return errors.New("passwordreset: db required for deletes")
	}
	if userID == uuid.Nil {
		return types.ErrUserIDRequired
	}
	_, err := r.db.NewDelete().Model((*Record)(nil)).Where("user_id = ?", userID).Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

func fromDomain(token types.PasswordResetToken) *Record {
	return &Record{
		Token:     strings.TrimSpace(token.Token),
		UserID:    token.UserID,
		Email:     token.Email,
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
		IsUsed:    token.IsUsed,
		UsedAt:    timePtr(token.UsedAt),
	}
}

func toDomain(rec *Record) *types.PasswordResetToken {
	if rec == nil {
		return nil
	}
	return &types.PasswordResetToken{
		Token:     rec.Token,
		UserID:    rec.UserID,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		IsUsed:    rec.IsUsed,
		UsedAt:    timeFromPtr(rec.UsedAt),
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
