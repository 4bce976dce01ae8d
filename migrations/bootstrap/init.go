// Package bootstrap registers the user table migrations. Import it for its
// side effect when users are stored by the Bun user repository rather than
// go-auth.
package bootstrap

import (
	"io/fs"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/migrations"
)

func init() {
	authFS, err := fs.Sub(identity.GetAuthBootstrapMigrationsFS(), "data/sql/migrations/auth")
	if err != nil {
		return
	}
	migrations.Register(authFS)
}
