package activity

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

func TestRepository_LogMasksAndLists(t *testing.T) {
	ctx := context.Background()
	db := newTestActivityDB(t)
	applyActivityDDL(t, db)

	store, err := NewRepository(RepositoryConfig{DB: db})
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, store.Log(ctx, types.ActivityRecord{
		UserID:     userID,
		Verb:       "oauth.token.issued",
		ObjectType: "client",
		ObjectID:   "my-client",
		Channel:    "oauth",
		Data: map[string]any{
			"grant_type":    "authorization_code",
			"refresh_token": "rt-plain-value",
		},
	}))
	require.NoError(t, store.Log(ctx, types.ActivityRecord{
		UserID:     userID,
		Verb:       "auth.login.failed",
		OccurredAt: time.Now().UTC().Add(-time.Hour),
	}))

	records, err := store.ListActivity(ctx, Filter{UserID: userID, Verbs: []string{"oauth.token.issued"}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "authorization_code", records[0].Data["grant_type"])
	require.NotEqual(t, "rt-plain-value", records[0].Data["refresh_token"])

	all, err := store.ListActivity(ctx, Filter{UserID: userID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "oauth.token.issued", all[0].Verb)

	older, err := store.ListActivity(ctx, Filter{
		UserID: userID,
		Cursor: &ActivityCursor{OccurredAt: all[0].OccurredAt, ID: all[0].ID},
	})
	require.NoError(t, err)
	require.Len(t, older, 1)
	require.Equal(t, "auth.login.failed", older[0].Verb)
}

func TestActivityCursorToken(t *testing.T) {
	cursor := ActivityCursor{OccurredAt: time.Date(2026, 4, 5, 6, 7, 8, 9, time.UTC), ID: uuid.New()}

	parsed, err := ParseCursor(cursor.Token())
	require.NoError(t, err)
	require.Equal(t, cursor, *parsed)

	empty, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, empty)

	_, err = ParseCursor("bm90LWEtY3Vyc29y")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestSanitizeRecordMasksDefaultFields(t *testing.T) {
	record := types.ActivityRecord{
		Data: map[string]any{
			"password":      "secret-value",
			"client_secret": "abcd1234",
			"code_verifier": "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk",
			"client_id":     "my-client",
		},
	}
	out := SanitizeRecord(DefaultMasker(), record)
	require.NotEqual(t, "secret-value", out.Data["password"])
	require.NotEqual(t, "abcd1234", out.Data["client_secret"])
	require.NotEqual(t, "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", out.Data["code_verifier"])
	require.Equal(t, "my-client", out.Data["client_id"])
	require.Equal(t, "secret-value", record.Data["password"])
}

func newTestActivityDB(t *testing.T) *bun.DB {
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

func applyActivityDDL(t *testing.T, db *bun.DB) {
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
