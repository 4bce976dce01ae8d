package goauth

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth"
	"github.com/goliatone/go-identity/pkg/types"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Store is the part of go-auth's auth.Users the adapter relies on.
type Store interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error)
	Create(ctx context.Context, user *auth.User) (*auth.User, error)
	Update(ctx context.Context, user *auth.User) (*auth.User, error)
	TrackAttemptedLogin(ctx context.Context, user *auth.User) error
	TrackSucccessfulLogin(ctx context.Context, user *auth.User) error
}

// UsersAdapter exposes go-auth users as a types.UserRepository. Credential
// state that go-auth has no columns for lives in the user metadata.
//
// go-auth offers no conditional update, so the credential version is checked
// with a read before the write. Deployments that need the strict guarantees
// should use the accounts package instead.
type UsersAdapter struct {
	store Store
	role  auth.UserRole
}

// UsersAdapterOption customizes adapter construction.
type UsersAdapterOption func(*UsersAdapter)

// WithDefaultRole sets the role given to users created through the adapter.
func WithDefaultRole(role string) UsersAdapterOption {
	return func(adapter *UsersAdapter) {
		if role = strings.TrimSpace(role); role != "" {
			adapter.role = auth.UserRole(role)
		}
	}
}

// NewUsersAdapter wraps a go-auth users store.
func NewUsersAdapter(store Store, opts ...UsersAdapterOption) *UsersAdapter {
	adapter := &UsersAdapter{store: store, role: auth.UserRole("member")}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

var _ types.UserRepository = (*UsersAdapter)(nil)

// GetByID loads a user by UUID.
func (a *UsersAdapter) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	record, err := a.load(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	return toUser(record), nil
}

// GetByEmail loads a user by email.
func (a *UsersAdapter) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	record, err := a.lookup(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil || record == nil {
		return nil, err
	}
	return toUser(record), nil
}

// ExistsByEmail reports whether the email is taken.
func (a *UsersAdapter) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	record, err := a.lookup(ctx, strings.ToLower(strings.TrimSpace(email)))
	return record != nil, err
}

// ExistsByUsername reports whether the username is taken.
func (a *UsersAdapter) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	record, err := a.lookup(ctx, strings.TrimSpace(username))
	if err != nil || record == nil {
		return false, err
	}
	return strings.EqualFold(record.Username, strings.TrimSpace(username)), nil
}

// Create stores user, credential and profile in one go-auth record.
func (a *UsersAdapter) Create(ctx context.Context, user types.User) (*types.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Credential.Version == 0 {
		user.Credential.Version = 1
	}
	record := fromUser(user, nil)
	if record.Role == "" {
		record.Role = a.role
	}
	created, err := a.store.Create(ctx, record)
	if err != nil {
		return nil, err
	}
	return toUser(created), nil
}

// Update writes the user when the stored credential version still matches.
// Lockout counters are carried over from the stored record.
func (a *UsersAdapter) Update(ctx context.Context, user types.User) (*types.User, error) {
	current, err := a.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, types.ErrStaleRecord
	}
	stored := decodeCredential(current.Metadata)
	if stored.Version != user.Credential.Version {
		return nil, types.ErrStaleRecord
	}
	user.Credential.FailedLoginAttempts = stored.FailedLoginAttempts
	user.Credential.LockedUntil = stored.LockedUntil
	user.Credential.LastLoginAt = stored.LastLoginAt
	user.Credential.Version = stored.Version + 1

	updated, err := a.store.Update(ctx, fromUser(user, current))
	if err != nil {
		return nil, err
	}
	return toUser(updated), nil
}

// RecordFailedLogin increments the failure counter and locks the account once
// maxAttempts is reached.
func (a *UsersAdapter) RecordFailedLogin(ctx context.Context, id uuid.UUID, maxAttempts int, lockout time.Duration, now time.Time) (types.LockoutState, error) {
	record, err := a.load(ctx, id)
	if err != nil {
		return types.LockoutState{}, err
	}
	if record == nil {
		return types.LockoutState{}, nil
	}
	cred := decodeCredential(record.Metadata)
	cred.FailedLoginAttempts++
	if maxAttempts > 0 && cred.FailedLoginAttempts >= maxAttempts {
		cred.LockedUntil = now.Add(lockout)
	}
	record.Metadata = encodeCredential(record.Metadata, cred)
	updated, err := a.store.Update(ctx, record)
	if err != nil {
		return types.LockoutState{}, err
	}
	if err := a.store.TrackAttemptedLogin(ctx, updated); err != nil {
		return types.LockoutState{}, err
	}
	return types.LockoutState{
		FailedAttempts: cred.FailedLoginAttempts,
		LockedUntil:    cred.LockedUntil,
	}, nil
}

// ResetFailedLogins clears the counters and stamps the last login.
func (a *UsersAdapter) ResetFailedLogins(ctx context.Context, id uuid.UUID, now time.Time) error {
	record, err := a.load(ctx, id)
	if err != nil || record == nil {
		return err
	}
	cred := decodeCredential(record.Metadata)
	cred.FailedLoginAttempts = 0
	cred.LockedUntil = time.Time{}
	cred.LastLoginAt = now
	record.Metadata = encodeCredential(record.Metadata, cred)
	updated, err := a.store.Update(ctx, record)
	if err != nil {
		return err
	}
	return a.store.TrackSucccessfulLogin(ctx, updated)
}

func (a *UsersAdapter) load(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	record, err := a.store.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (a *UsersAdapter) lookup(ctx context.Context, identifier string) (*auth.User, error) {
	if identifier == "" {
		return nil, nil
	}
	record, err := a.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
