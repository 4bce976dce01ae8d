package consents

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted oauth_consents row.
type Record struct {
	bun.BaseModel `bun:"table:oauth_consents"`

	ID        uuid.UUID  `bun:"id,pk,type:uuid"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	ClientID  string     `bun:"client_id,notnull"`
	Scopes    []string   `bun:"scopes,type:jsonb"`
	Remember  bool       `bun:"remember,notnull"`
	GrantedAt time.Time  `bun:"granted_at,notnull"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero"`
}
