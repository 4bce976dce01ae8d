package command

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity/password"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

// ChangePasswordInput replaces the password of an authenticated user.
type ChangePasswordInput struct {
	UserID          uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// Type implements gocommand.Message.
func (ChangePasswordInput) Type() string {
	return "command.auth.password.change"
}

// Validate implements gocommand.Message.
func (input ChangePasswordInput) Validate() error {
	switch {
	case input.UserID == uuid.Nil:
		return ErrUserIDRequired
	case input.CurrentPassword == "", input.NewPassword == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// PasswordConfig holds dependencies shared by password change and reset.
type PasswordConfig struct {
	Users        types.UserRepository
	Hasher       types.PasswordHasher
	Policy       types.PasswordPolicy
	Resets       types.PasswordResetRepository
	HistoryDepth int
	Clock        types.Clock
	Logger       types.Logger
	Activity     types.ActivitySink
	Hooks        types.Hooks
}

// ChangePasswordCommand verifies the current password and stores a new one.
type ChangePasswordCommand struct {
	writer *passwordWriter
}

// NewChangePasswordCommand constructs the change handler.
func NewChangePasswordCommand(cfg PasswordConfig) *ChangePasswordCommand {
	return &ChangePasswordCommand{writer: newPasswordWriter(cfg)}
}

var _ gocommand.Commander[ChangePasswordInput] = (*ChangePasswordCommand)(nil)

// Execute fails with invalid_password when the current password is wrong and
// weak_password when the new one breaks the policy or repeats history.
func (c *ChangePasswordCommand) Execute(ctx context.Context, input ChangePasswordInput) error {
	if err := c.writer.ready(); err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}
	user, err := c.writer.users.GetByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return types.NewAuthError(types.ErrorInvalidPassword, "current password is incorrect")
	}
	if !c.writer.hasher.Verify(user.Credential.PasswordHash, input.CurrentPassword) {
		return types.NewAuthError(types.ErrorInvalidPassword, "current password is incorrect")
	}
	if err := c.writer.validate(user, input.NewPassword); err != nil {
		return err
	}
	return c.writer.store(ctx, user, input.NewPassword, "user.password.changed")
}

// passwordWriter validates and persists a new password, then clears lockout
// counters and outstanding reset tokens.
type passwordWriter struct {
	users    types.UserRepository
	hasher   types.PasswordHasher
	policy   types.PasswordPolicy
	resets   types.PasswordResetRepository
	depth    int
	clock    types.Clock
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

func newPasswordWriter(cfg PasswordConfig) *passwordWriter {
	return &passwordWriter{
		users:    cfg.Users,
		hasher:   cfg.Hasher,
		policy:   cfg.Policy,
		resets:   cfg.Resets,
		depth:    cfg.HistoryDepth,
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}
}

func (w *passwordWriter) ready() error {
	switch {
	case w.users == nil:
		return types.ErrMissingUserRepository
	case w.hasher == nil:
		return types.ErrMissingPasswordHasher
	case w.policy == nil:
		return ErrMissingPasswordPolicy
	case w.resets == nil:
		return types.ErrMissingPasswordResetRepository
	default:
		return nil
	}
}

// validate checks the policy including reuse of the current or a recent
// password.
func (w *passwordWriter) validate(user *types.User, newPassword string) error {
	history := append([]string{user.Credential.PasswordHash}, user.Credential.PasswordHistory...)
	if violations := w.policy.Validate(types.PasswordInput{
		Password: newPassword,
		Email:    user.Email,
		Username: user.Username,
		History:  history,
	}); len(violations) > 0 {
		return types.NewWeakPasswordError(violations)
	}
	return nil
}

func (w *passwordWriter) store(ctx context.Context, user *types.User, newPassword, verb string) error {
	hash, err := w.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	at := now(w.clock)
	history := user.Credential.PasswordHistory
	if prior := user.Credential.PasswordHash; prior != "" {
		history = historyWith(history, prior, w.depth)
	}
	user.Credential.PasswordHash = hash
	user.Credential.PasswordHistory = historyWith(history, hash, w.depth)
	user.Credential.PasswordChangedAt = at
	user.UpdatedAt = at
	if _, err := w.users.Update(ctx, *user); err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			return types.NewValidationError(types.ErrorInvalidPassword, "credential changed concurrently, retry")
		}
		return err
	}
	if err := w.users.ResetFailedLogins(ctx, user.ID, at); err != nil {
		return err
	}
	if err := w.resets.DeleteForUser(ctx, user.ID); err != nil {
		return err
	}

	recordActivity(ctx, w.activity, w.hooks, types.ActivityRecord{
		UserID:     user.ID,
		ActorID:    user.ID,
		Verb:       verb,
		ObjectType: "user",
		ObjectID:   user.ID.String(),
		Channel:    "password",
		OccurredAt: at,
	})
	w.logger.Info("password updated", "user_id", user.ID.String(), "verb", verb)
	return nil
}

// historyWith records hash in the bounded history. A zero depth keeps no
// history.
func historyWith(history []string, hash string, depth int) []string {
	return password.AppendHistory(history, hash, depth)
}
