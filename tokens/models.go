package tokens

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshRecord models the persisted oauth_refresh_tokens row.
type RefreshRecord struct {
	bun.BaseModel `bun:"table:oauth_refresh_tokens"`

	Token       string     `bun:"token,pk"`
	ClientID    string     `bun:"client_id,notnull"`
	UserID      uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Scope       string     `bun:"scope,notnull"`
	IssuedAt    time.Time  `bun:"issued_at,notnull"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull"`
	IsRevoked   bool       `bun:"is_revoked,notnull"`
	RevokedAt   *time.Time `bun:"revoked_at,nullzero"`
	ReplacedBy  string     `bun:"replaced_by,nullzero"`
	ParentToken string     `bun:"parent_token,nullzero"`
}

// BlacklistRecord models the persisted oauth_token_blacklist row.
type BlacklistRecord struct {
	bun.BaseModel `bun:"table:oauth_token_blacklist"`

	JTI       string    `bun:"jti,pk"`
	RevokedAt time.Time `bun:"revoked_at,notnull"`
	Reason    string    `bun:"reason,nullzero"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}
