package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the lockout view of an email address.
type AccountStatus struct {
	IsLocked bool
	UnlockAt time.Time
	// RequiredDelay is how long the caller must still wait before the next
	// attempt is evaluated.
	RequiredDelay time.Duration
	Failures      int
}

// RequiredDelaySeconds rounds RequiredDelay up to whole seconds.
func (s AccountStatus) RequiredDelaySeconds() int {
	if s.RequiredDelay <= 0 {
		return 0
	}
	return int((s.RequiredDelay + time.Second - 1) / time.Second)
}

// IPStatus is the blocking view of a client address.
type IPStatus struct {
	IsBlocked bool
	Failures  int
}

// AttemptInput describes one login attempt. UserID is set when the email
// resolved to a user.
type AttemptInput struct {
	Email         string
	IP            string
	UserAgent     string
	UserID        uuid.UUID
	Success       bool
	FailureReason string
}

// BruteForceProtection guards the login flow. RecordAttempt must be called
// for every attempt, including unknown emails.
type BruteForceProtection interface {
	CheckAccount(ctx context.Context, email string) (AccountStatus, error)
	CheckIP(ctx context.Context, ip string) (IPStatus, error)
	RecordAttempt(ctx context.Context, input AttemptInput) error
}
