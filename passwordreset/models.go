package passwordreset

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted password_reset_tokens row.
type Record struct {
	bun.BaseModel `bun:"table:password_reset_tokens"`

	Token     string     `bun:"token,pk"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	Email     string     `bun:"email,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	ExpiresAt time.Time  `bun:"expires_at,notnull"`
	IsUsed    bool       `bun:"is_used,notnull"`
	UsedAt    *time.Time `bun:"used_at,nullzero"`
}
