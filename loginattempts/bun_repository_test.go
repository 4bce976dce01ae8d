package loginattempts

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestLoginAttempts_FailureStatsResetAfterSuccess(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	record := func(offset time.Duration, success bool) {
		require.NoError(t, repo.RecordAttempt(ctx, types.LoginAttempt{
			Email:      "Alice@Example.com",
			IP:         "10.0.0.1",
			Success:    success,
			OccurredAt: base.Add(offset),
		}))
	}
	record(time.Minute, false)
	record(2*time.Minute, false)
	record(3*time.Minute, true)
	record(4*time.Minute, false)
	record(5*time.Minute, false)

	stats, err := repo.FailureStats(ctx, types.AttemptKey{Email: "alice@example.com"}, base)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Failures)
	require.True(t, stats.LastSuccessAt.Equal(base.Add(3*time.Minute)))
	require.True(t, stats.LastFailureAt.Equal(base.Add(5*time.Minute)))

	stats, err = repo.FailureStats(ctx, types.AttemptKey{IP: "10.0.0.1"}, base.Add(4*time.Minute+30*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failures)
}

func TestLoginAttempts_WindowAndPurge(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{-time.Hour, -10 * time.Minute, -time.Minute} {
		require.NoError(t, repo.RecordAttempt(ctx, types.LoginAttempt{
			IP:            "192.0.2.4",
			FailureReason: types.FailureReasonInvalidPassword,
			OccurredAt:    now.Add(offset),
		}))
	}

	stats, err := repo.FailureStats(ctx, types.AttemptKey{IP: "192.0.2.4"}, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, stats.Failures)
	require.True(t, stats.LastSuccessAt.IsZero())

	purged, err := repo.PurgeBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, purged)

	_, err = repo.FailureStats(ctx, types.AttemptKey{}, now)
	require.ErrorIs(t, err, ErrAttemptKeyRequired)
	require.ErrorIs(t, repo.RecordAttempt(ctx, types.LoginAttempt{}), ErrAttemptKeyRequired)
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
	content, err := os.ReadFile("../data/sql/migrations/sqlite/000001_oauth_core.up.sql")
	require.NoError(t, err)
	for _, stmt := range splitStatements(string(content)) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
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
