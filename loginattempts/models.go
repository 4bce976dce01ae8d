package loginattempts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted login_attempts row.
type Record struct {
	bun.BaseModel `bun:"table:login_attempts"`

	ID            uuid.UUID `bun:"id,pk,type:uuid"`
	Email         string    `bun:"email,nullzero"`
	IP            string    `bun:"ip,nullzero"`
	UserAgent     string    `bun:"user_agent,nullzero"`
	Success       bool      `bun:"success,notnull"`
	FailureReason string    `bun:"failure_reason,nullzero"`
	OccurredAt    time.Time `bun:"occurred_at,notnull"`
}
