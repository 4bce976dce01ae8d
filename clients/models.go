package clients

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted oauth_clients row.
type Record struct {
	bun.BaseModel `bun:"table:oauth_clients"`

	ID                     uuid.UUID  `bun:"id,pk,type:uuid"`
	ClientID               string     `bun:"client_id,notnull"`
	Name                   string     `bun:"name"`
	SecretHash             string     `bun:"secret_hash"`
	ClientType             string     `bun:"client_type,notnull"`
	RedirectURIs           []string   `bun:"redirect_uris,type:jsonb"`
	AllowedScopes          []string   `bun:"allowed_scopes,type:jsonb"`
	GrantTypes             []string   `bun:"grant_types,type:jsonb"`
	ResponseTypes          []string   `bun:"response_types,type:jsonb"`
	AccessTokenTTLSeconds  int64      `bun:"access_token_ttl_seconds,notnull"`
	IDTokenTTLSeconds      int64      `bun:"id_token_ttl_seconds,notnull"`
	RefreshTokenTTLSeconds int64      `bun:"refresh_token_ttl_seconds,notnull"`
	IsFirstParty           bool       `bun:"is_first_party,notnull"`
	IsActive               bool       `bun:"is_active,notnull"`
	RequirePKCE            bool       `bun:"require_pkce,notnull"`
	CreatedAt              *time.Time `bun:"created_at,nullzero"`
	UpdatedAt              *time.Time `bun:"updated_at,nullzero"`
}
