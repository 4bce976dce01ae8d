// Package accounts is the Bun backed user store. It keeps the user row and
// its credential row in separate tables so lockout counters can be updated
// without touching the versioned credential fields.
package accounts

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

// ErrEmailRequired is returned when creating a user without an email.
var ErrEmailRequired = errors.New("accounts: email required")

// RepositoryConfig wires the Bun-backed user repository.
type RepositoryConfig struct {
	DB         *bun.DB
	Repository repository.Repository[*UserRecord]
	Clock      types.Clock
	IDGen      types.IDGenerator
}

// Repository implements types.UserRepository.
type Repository struct {
	users repository.Repository[*UserRecord]
	db    *bun.DB
	clock types.Clock
	idGen types.IDGenerator
}

// NewRepository constructs the user repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Repository == nil && cfg.DB == nil {
		return nil, errors.New("accounts: db or repository required")
	}
	repo := cfg.Repository
	if repo == nil {
		repo = repository.NewRepository(cfg.DB, repository.ModelHandlers[*UserRecord]{
			NewRecord: func() *UserRecord { return &UserRecord{} },
			GetID: func(rec *UserRecord) uuid.UUID {
				if rec == nil {
					return uuid.Nil
				}
				return rec.ID
			},
			SetID: func(rec *UserRecord, id uuid.UUID) {
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
	if db == nil {
		return nil, errors.New("accounts: db required for credential storage")
	}
	r := &Repository{users: repo, db: db, clock: cfg.Clock, idGen: cfg.IDGen}
	if r.clock == nil {
		r.clock = types.SystemClock{}
	}
	if r.idGen == nil {
		r.idGen = types.UUIDGenerator{}
	}
	return r, nil
}

var _ types.UserRepository = (*Repository)(nil)

// GetByID loads the user with its credential.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	if id == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	return r.load(ctx, repository.SelectBy("id", "=", id.String()))
}

// GetByEmail loads the user by case-insensitive email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.load(ctx, repository.SelectBy("email", "=", email))
}

// ExistsByEmail reports whether an account already uses email.
func (r *Repository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}
	return r.exists(ctx, "email", email)
}

// ExistsByUsername reports whether an account already uses username.
func (r *Repository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}
	return r.exists(ctx, "username", username)
}

// Create inserts the user and credential rows in one transaction.
func (r *Repository) Create(ctx context.Context, user types.User) (*types.User, error) {
	user.Email = normalizeEmail(user.Email)
	if user.Email == "" {
		return nil, ErrEmailRequired
	}
	if user.ID == uuid.Nil {
		user.ID = r.idGen.UUID()
	}
	now := r.clock.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Credential.Version = 1
	if user.Credential.PasswordChangedAt.IsZero() && user.Credential.PasswordHash != "" {
		user.Credential.PasswordChangedAt = now
	}

	userRec := userFromDomain(user)
	credRec := credentialFromDomain(user.ID, user.Credential, now)
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(userRec).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(credRec).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return r.GetByID(ctx, user.ID)
}

// Update writes the user row and the versioned credential fields. The
// credential update only applies when the stored version still matches
// user.Credential.Version.
func (r *Repository) Update(ctx context.Context, user types.User) (*types.User, error) {
	if user.ID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	now := r.clock.Now()
	user.Email = normalizeEmail(user.Email)
	user.UpdatedAt = now

	userRec := userFromDomain(user)
	credRec := credentialFromDomain(user.ID, user.Credential, now)
	expected := user.Credential.Version
	credRec.Version = expected + 1

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().Model(userRec).
			Column("email", "username", "roles", "is_active", "email_verified",
				"given_name", "family_name", "display_name", "picture", "locale", "zoneinfo", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		res, err := tx.NewUpdate().Model(credRec).
			Column("password_hash", "password_history", "password_changed_at", "mfa_enabled",
				"mfa_secret", "recovery_codes", "version", "updated_at").
			WherePK().
			Where("version = ?", expected).
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
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			return nil, err
		}
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return r.GetByID(ctx, user.ID)
}

// RecordFailedLogin bumps the failure counter in a single statement. An
// expired lockout restarts the count; reaching maxAttempts sets LockedUntil.
func (r *Repository) RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockout time.Duration, now time.Time) (types.LockoutState, error) {
	var state types.LockoutState
	if id == uuid.Nil {
		return state, types.ErrUserIDRequired
	}
	if now.IsZero() {
		now = r.clock.Now()
	}
	next := "CASE WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1 ELSE failed_login_attempts + 1 END"
	q := r.db.NewUpdate().Model((*CredentialRecord)(nil)).
		Set("failed_login_attempts = "+next, now)
	if maxAttempts > 0 {
		q = q.Set("locked_until = CASE WHEN ("+next+") >= ? THEN ? ELSE locked_until END", now, maxAttempts, now.Add(lockout))
	}
	res, err := q.Set("updated_at = ?", now).
		Where("user_id = ?", id).
		Exec(ctx)
	if err != nil {
		return state, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	if err := repository.SQLExpectedCount(res, 1); err != nil {
		return state, err
	}
	cred, err := r.credential(ctx, id)
	if err != nil {
		return state, err
	}
	state.FailedAttempts = cred.FailedLoginAttempts
	state.LockedUntil = timeFromPtr(cred.LockedUntil)
	return state, nil
}

// ResetFailedLogins clears the counters and stamps the last login.
func (r *Repository) ResetFailedLogins(ctx context.Context, id uuid.UUID, now time.Time) error {
	if id == uuid.Nil {
		return types.ErrUserIDRequired
	}
	if now.IsZero() {
		now = r.clock.Now()
	}
	_, err := r.db.NewUpdate().Model((*CredentialRecord)(nil)).
		Set("failed_login_attempts = 0").
		Set("locked_until = NULL").
		Set("last_login_at = ?", now).
		Set("updated_at = ?", now).
		Where("user_id = ?", id).
		Exec(ctx)
	if err != nil {
		return repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return nil
}

func (r *Repository) load(ctx context.Context, criteria repository.SelectCriteria) (*types.User, error) {
	rec, err := r.users.Get(ctx, criteria)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	cred, err := r.credential(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return toDomain(rec, cred), nil
}

func (r *Repository) credential(ctx context.Context, userID uuid.UUID) (*CredentialRecord, error) {
	cred := &CredentialRecord{}
	err := r.db.NewSelect().Model(cred).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &CredentialRecord{UserID: userID}, nil
		}
		return nil, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return cred, nil
}

func (r *Repository) exists(ctx context.Context, column, value string) (bool, error) {
	exists, err := r.db.NewSelect().Model((*UserRecord)(nil)).
		Where("LOWER(?) = LOWER(?)", bun.Ident(column), value).
		Exists(ctx)
	if err != nil {
		return false, repository.MapDatabaseError(err, repository.DetectDriver(r.db))
	}
	return exists, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
