package query

import (
	"context"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

// AccountSecurityInput selects the account to summarize.
type AccountSecurityInput struct {
	UserID uuid.UUID
}

// AccountSecurity summarizes credential state without exposing secrets.
type AccountSecurity struct {
	UserID                 uuid.UUID
	MFAState               types.MFAState
	RemainingRecoveryCodes int
	FailedLoginAttempts    int
	Locked                 bool
	LockedUntil            time.Time
	LastLoginAt            time.Time
	PasswordChangedAt      time.Time
}

// AccountSecurityQuery reads the credential summary for account settings
// screens.
type AccountSecurityQuery struct {
	users types.UserRepository
	clock types.Clock
}

// NewAccountSecurityQuery constructs the query helper.
func NewAccountSecurityQuery(users types.UserRepository, clock types.Clock) *AccountSecurityQuery {
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &AccountSecurityQuery{users: users, clock: clock}
}

var _ gocommand.Querier[AccountSecurityInput, *AccountSecurity] = (*AccountSecurityQuery)(nil)

// Query loads the user and projects its credential. Unknown users yield nil.
func (q *AccountSecurityQuery) Query(ctx context.Context, input AccountSecurityInput) (*AccountSecurity, error) {
	if q == nil || q.users == nil {
		return nil, types.ErrMissingUserRepository
	}
	if input.UserID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	user, err := q.users.GetByID(ctx, input.UserID)
	if err != nil || user == nil {
		return nil, err
	}
	cred := user.Credential
	summary := &AccountSecurity{
		UserID:              user.ID,
		MFAState:            cred.MFAState(),
		FailedLoginAttempts: cred.FailedLoginAttempts,
		Locked:              cred.IsLocked(q.clock.Now()),
		LastLoginAt:         cred.LastLoginAt,
		PasswordChangedAt:   cred.PasswordChangedAt,
	}
	if summary.Locked {
		summary.LockedUntil = cred.LockedUntil
	}
	if summary.MFAState == types.MFAStateEnabled {
		summary.RemainingRecoveryCodes = len(cred.RecoveryCodes)
	}
	return summary, nil
}
