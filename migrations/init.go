package migrations

import (
	"io/fs"

	identity "github.com/goliatone/go-identity"
)

func init() {
	coreFS, err := fs.Sub(identity.GetCoreMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return
	}
	Register(coreFS)
}
