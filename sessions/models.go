package sessions

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted auth_sessions row.
type Record struct {
	bun.BaseModel `bun:"table:auth_sessions"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	UserID      uuid.UUID `bun:"user_id,notnull,type:uuid"`
	ClientID    string    `bun:"client_id,nullzero"`
	IP          string    `bun:"ip,nullzero"`
	UserAgent   string    `bun:"user_agent,nullzero"`
	AuthMethods []string  `bun:"auth_methods,type:jsonb"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
}
