package tokens

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// BlacklistConfig wires the Bun-backed access token blacklist.
type BlacklistConfig struct {
	DB    *bun.DB
	Clock types.Clock
}

// Blacklist implements types.TokenBlacklistRepository.
type Blacklist struct {
	db    *bun.DB
	clock types.Clock
}

// NewBlacklist constructs the blacklist repository.
func NewBlacklist(cfg BlacklistConfig) (*Blacklist, error) {
	if cfg.DB == nil {
		return nil, errors.New("tokens: db required for blacklist")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Blacklist{db: cfg.DB, clock: clock}, nil
}

var _ types.TokenBlacklistRepository = (*Blacklist)(nil)

// Add records a revoked JTI. Adding the same JTI twice keeps the first entry.
func (b *Blacklist) Add(ctx context.Context, entry types.TokenBlacklistEntry) error {
	jti := strings.TrimSpace(entry.JTI)
	if jti == "" {
		return errors.New("tokens: jti required")
	}
	rec := &BlacklistRecord{
		JTI:       jti,
		RevokedAt: entry.RevokedAt,
		Reason:    entry.Reason,
		ExpiresAt: entry.ExpiresAt,
	}
	if rec.RevokedAt.IsZero() {
		rec.RevokedAt = b.clock.Now()
	}
	_, err := b.db.NewInsert().Model(rec).On("CONFLICT (jti) DO NOTHING").Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(b.db))
	}
	return nil
}

// IsBlacklisted reports whether jti was revoked.
func (b *Blacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	exists, err := b.db.NewSelect().Model((*BlacklistRecord)(nil)).Where("jti = ?", jti).Exists(ctx)
	if err != nil {
		return false, repository.MapDatabaseError(err, repository.DetectDriver(b.db))
	}
	return exists, nil
}

// PurgeExpired drops entries whose token would have expired anyway.
func (b *Blacklist) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = b.clock.Now()
	}
	res, err := b.db.NewDelete().Model((*BlacklistRecord)(nil)).Where("expires_at <= ?", now).Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(b.db))
	}
	n, err := res.RowsAffected()
	return int(n), err
}
