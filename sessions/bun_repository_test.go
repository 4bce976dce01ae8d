package sessions

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

func TestSessionManager_CreateAppliesTTL(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	applyDDL(t, db)

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	manager, err := NewManager(Config{DB: db, Clock: fixedClock{t: now}, TTL: 2 * time.Hour})
	require.NoError(t, err)

	userID := uuid.New()
	created, err := manager.CreateSession(ctx, types.Session{
		UserID:      userID,
		ClientID:    "my-client",
		IP:          "10.0.0.1",
		AuthMethods: []string{"pwd", "otp"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.True(t, created.ExpiresAt.Equal(now.Add(2*time.Hour)))

	found, err := manager.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, []string{"pwd", "otp"}, found.AuthMethods)

	ended, err := manager.EndSessionsForUser(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, ended)

	found, err = manager.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, found)

	_, err = manager.CreateSession(ctx, types.Session{})
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
