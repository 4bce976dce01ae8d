package consents

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

func TestConsentRepository_UpsertReplacesScopes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	first, err := repo.Save(ctx, types.Consent{
		UserID:    userID,
		ClientID:  "my-client",
		Scopes:    []string{"openid", "profile"},
		Remember:  true,
		GrantedAt: now,
		ExpiresAt: now.Add(365 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"openid", "profile"}, first.Scopes)

	second, err := repo.Save(ctx, types.Consent{
		UserID:    userID,
		ClientID:  "my-client",
		Scopes:    []string{"openid", "profile", "email"},
		GrantedAt: now.Add(time.Hour),
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []string{"openid", "profile", "email"}, second.Scopes)
	require.False(t, second.Remember)
	require.True(t, second.IsExpired(now.Add(time.Hour)))

	require.NoError(t, repo.Delete(ctx, userID, "my-client"))
	gone, err := repo.GetByUserAndClient(ctx, userID, "my-client")
	require.NoError(t, err)
	require.Nil(t, gone)

	require.NoError(t, repo.Delete(ctx, userID, "my-client"))
}

func TestConsentRepository_RequiresUser(t *testing.T) {
	db := newTestDB(t)
	applyDDL(t, db)

	repo, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	_, err = repo.Save(context.Background(), types.Consent{ClientID: "c"})
	require.ErrorIs(t, err, types.ErrUserIDRequired)
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
