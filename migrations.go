package identity

import "embed"

// MigrationsFS contains SQL migrations for both PostgreSQL and SQLite.
//
// The migrations are organized in a dialect-aware structure:
//   - Root files (data/sql/migrations/*.sql) contain PostgreSQL migrations
//   - SQLite overrides are in data/sql/migrations/sqlite/*.sql
//   - data/sql/migrations/auth holds the user tables, needed only when users
//     are not stored through go-auth
//
//go:embed data/sql/migrations
var MigrationsFS embed.FS

// CoreMigrationsFS contains the OAuth tables (clients, codes, refresh tokens,
// blacklist, consents, resets, sessions, login attempts, activity).
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var CoreMigrationsFS embed.FS

// AuthBootstrapMigrationsFS contains the users and user_credentials tables
// used by the Bun user repository.
//
//go:embed data/sql/migrations/auth
var AuthBootstrapMigrationsFS embed.FS

// GetCoreMigrationsFS exposes the core OAuth migrations.
func GetCoreMigrationsFS() embed.FS {
	return CoreMigrationsFS
}

// GetAuthBootstrapMigrationsFS exposes the user table migrations rooted at
// data/sql/migrations/auth.
func GetAuthBootstrapMigrationsFS() embed.FS {
	return AuthBootstrapMigrationsFS
}
