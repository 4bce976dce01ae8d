package identity

import "github.com/goliatone/go-identity/service"

// Re-export the service package entry point so consumers can do
// `identity.New(...)` without importing internal wiring helpers.
type (
	Service      = service.Service
	Config       = service.Config
	Commands     = service.Commands
	Queries      = service.Queries
	Repositories = service.Repositories
)

// New constructs the go-identity runtime using the provided configuration.
func New(cfg Config) (*Service, error) {
	return service.New(cfg)
}
