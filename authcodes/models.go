package authcodes

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the persisted oauth_authorization_codes row.
type Record struct {
	bun.BaseModel `bun:"table:oauth_authorization_codes"`

	Code                string     `bun:"code,pk"`
	ClientID            string     `bun:"client_id,notnull"`
	UserID              uuid.UUID  `bun:"user_id,notnull,type:uuid"`
	RedirectURI         string     `bun:"redirect_uri,notnull"`
	Scope               string     `bun:"scope,notnull"`
	Nonce               string     `bun:"nonce,nullzero"`
	State               string     `bun:"state,nullzero"`
	CodeChallenge       string     `bun:"code_challenge,nullzero"`
	CodeChallengeMethod string     `bun:"code_challenge_method,nullzero"`
	CreatedAt           time.Time  `bun:"created_at,notnull"`
	ExpiresAt           time.Time  `bun:"expires_at,notnull"`
	IsUsed              bool       `bun:"is_used,notnull"`
	UsedAt              *time.Time `bun:"used_at,nullzero"`
}
