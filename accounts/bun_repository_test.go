package accounts

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func seedUser(t *testing.T, repo *Repository) *types.User {
	t.Helper()
	user, err := repo.Create(context.Background(), types.User{
		Email:    "Alice@Example.com",
		Username: "alice",
		Roles:    []string{"user"},
		IsActive: true,
		Credential: types.UserCredential{
			PasswordHash: "hash-1",
		},
		Profile: types.UserProfile{GivenName: "Alice", FamilyName: "Liddell", Locale: "en-US"},
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	user := seedUser(t, repo)
	require.Equal(t, "alice@example.com", user.Email)
	require.Equal(t, 1, user.Credential.Version)
	require.False(t, user.Credential.PasswordChangedAt.IsZero())

	byEmail, err := repo.GetByEmail(ctx, " ALICE@example.com ")
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)
	require.Equal(t, "Alice Liddell", byEmail.Profile.FullName())

	exists, err := repo.ExistsByEmail(ctx, "alice@EXAMPLE.com")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, "")
	require.NoError(t, err)
	require.False(t, exists)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = repo.Create(ctx, types.User{})
	require.ErrorIs(t, err, ErrEmailRequired)
}

func TestUserRepository_UpdateDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	user := seedUser(t, repo)
	first := *user
	second := *user

	first.Credential.MFASecret = "JBSWY3DPEHPK3PXP"
	updated, err := repo.Update(ctx, first)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Credential.Version)
	require.Equal(t, types.MFAStatePending, updated.Credential.MFAState())

	second.Credential.PasswordHash = "hash-2"
	_, err = repo.Update(ctx, second)
	require.ErrorIs(t, err, types.ErrStaleRecord)

	reloaded, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "hash-1", reloaded.Credential.PasswordHash)
}

func TestUserRepository_LockoutCounters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	repo, err := NewRepository(RepositoryConfig{DB: db, Clock: fixedClock{t: now}})
	require.NoError(t, err)
	user := seedUser(t, repo)

	var state types.LockoutState
	for i := 1; i <= 3; i++ {
		state, err = repo.RecordFailedLogin(ctx, user.ID, 3, 15*time.Minute, now)
		require.NoError(t, err)
		require.Equal(t, i, state.FailedAttempts)
	}
	require.True(t, state.LockedUntil.Equal(now.Add(15*time.Minute)))

	locked, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, locked.CanLogin(now.Add(time.Minute)))
	require.True(t, locked.CanLogin(now.Add(16*time.Minute)))

	// Counter updates must not bump the credential version.
	require.Equal(t, user.Credential.Version, locked.Credential.Version)

	later := now.Add(20 * time.Minute)
	state, err = repo.RecordFailedLogin(ctx, user.ID, 3, 15*time.Minute, later)
	require.NoError(t, err)
	require.Equal(t, 1, state.FailedAttempts)

	require.NoError(t, repo.ResetFailedLogins(ctx, user.ID, later))
	reset, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, reset.Credential.FailedLoginAttempts)
	require.True(t, reset.Credential.LockedUntil.IsZero())
	require.True(t, reset.Credential.LastLoginAt.Equal(later))
}

func newTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
		_ = sqldb.Close()
	})
	return db
}

func applyDDL(t *testing.T, db *bun.DB) {
	for _, path := range []string{
		"../data/sql/migrations/auth/sqlite/000001_identity_users.up.sql",
		"../data/sql/migrations/sqlite/000001_oauth_core.up.sql",
	} {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		for _, stmt := range splitStatements(string(content)) {
			_, err := db.Exec(stmt)
			require.NoError(t, err)
		}
	}
}

func splitStatements(sql string) []string {
	lines := strings.Split(sql, "\n")
	var builder strings.Builder
	var statements []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		builder.WriteString(line)
		builder.WriteString(" ")
		if strings.HasSuffix(line, ";") {
			statements = append(statements, strings.TrimSuffix(strings.TrimSpace(builder.String()), ";"))
			builder.Reset()
		}
	}
	if rest := strings.TrimSpace(builder.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}
