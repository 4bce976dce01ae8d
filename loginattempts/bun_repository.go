// Package loginattempts records every login attempt and answers the failure
// window queries used by the brute-force guard.
package loginattempts

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

// ErrAttemptKeyRequired is returned when neither email nor IP is provided.
var ErrAttemptKeyRequired = errors.New("loginattempts: email or ip required")

// RepositoryConfig wires the Bun-backed attempt log.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*Record]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.LoginAttemptRepository.
type Repository struct {
	store repository.Repository[*Record]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the attempt repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("loginattempts: db or repository required")
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
	r := &Repository{store: repo, db: db, clock: cfg.Clock, idGen: cfg.IDGen}
	if r.clock == nil {
		r.clock = types.SystemClock{}
	}
	if r.idGen == nil {
		r.idGen = types.UUIDGenerator{}
	}
	return r, nil
}

var _ types.LoginAttemptRepository = (*Repository)(nil)

// RecordAttempt appends an attempt to the log.
func (r *Repository) RecordAttempt(ctx context.Context, attempt types.LoginAttempt) error {
	rec := &Record{
		ID:            attempt.ID,
		Email:         normalizeEmail(attempt.Email),
		IP:            strings.TrimSpace(attempt.IP),
		UserAgent:     attempt.UserAgent,
		Success:       attempt.Success,
		FailureReason: attempt.FailureReason,
		OccurredAt:    attempt.OccurredAt,
	}
	if rec.Email == "" && rec.IP == "" {
		return ErrAttemptKeyRequired
	}
	if rec.ID == uuid.Nil {
		rec.ID = r.idGen.UUID()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = r.clock.Now()
	}
	_, err := r.store.Create(ctx, rec)
	return err
}

// FailureStats counts failed attempts for key that happened after since and
// after the most recent success for the same key.
func (r *Repository) FailureStats(ctx context.Context, key types.AttemptKey, since time.Time) (types.AttemptStats, error) {
	var stats types.AttemptStats
	if r.db == nil {
		return stats, errors.New("loginattempts: db required for queries")
	}
	column, value := keyColumn(key)
	if column == "" {
		return stats, ErrAttemptKeyRequired
	}

	lastSuccess, err := r.latest(ctx, column, value, true)
	if err != nil {
		return stats, err
	}
	if lastSuccess != nil {
		stats.LastSuccessAt = lastSuccess.OccurredAt
	}
	from := since
	if stats.LastSuccessAt.After(from) {
		from = stats.LastSuccessAt
	}

	count, err := r.db.NewSelect().Model((*Record)(nil)).
		Where("? = ?", bun.Ident(column), value).
		Where("success = ?", false).
		Where("occurred_at > ?", from).
		Count(ctx)
	if err != nil {
		return stats, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	stats.Failures = count

	if count > 0 {
		lastFailure, err := r.latest(ctx, column, value, false)
		if err != nil {
			return stats, err
		}
		if lastFailure != nil {
			stats.LastFailureAt = lastFailure.OccurredAt
		}
	}
	return stats, nil
}

// PurgeBefore deletes attempts older than cutoff.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r.db == nil {
		return 0, errors.New("loginattempts: db required for deletes")
	}
	res, err := r.db.NewDelete().Model((*Record)(nil)).Where("occurred_at < ?", cutoff).Exec(ctx)
	if err != nil {
		return 0, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) latest(ctx context.Context, column, value string, success bool) (*Record, error) {
	rec := &Record{}
	err := r.db.NewSelect().Model(rec).
		Where("? = ?", bun.Ident(column), value).
		Where("success = ?", success).
		OrderExpr("occurred_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return rec, nil
}

func keyColumn(key types.AttemptKey) (string, string) {
	if email := normalizeEmail(key.Email); email != "" {
		return "email", email
	}
	if ip := strings.TrimSpace(key.IP); ip != "" {
		return "ip", ip
	}
	return "", ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
