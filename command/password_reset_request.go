package command

import (
	"context"
	"time"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

const defaultPasswordResetTTL = 1 * time.Hour

// PasswordResetRequestInput issues a reset token for an email address.
type PasswordResetRequestInput struct {
	Email  string
	Result *PasswordResetRequestResult
}

// Type implements gocommand.Message.
func (PasswordResetRequestInput) Type() string {
	return "command.auth.password_reset.request"
}

// Validate implements gocommand.Message.
func (input PasswordResetRequestInput) Validate() error {
	if normalizeEmail(input.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}

// PasswordResetRequestResult carries the token for out-of-band delivery. It
// stays empty when the email is unknown.
type PasswordResetRequestResult struct {
	User      *types.User
	Token     string
	ExpiresAt time.Time
}

// PasswordResetRequestConfig holds dependencies for reset issuance.
type PasswordResetRequestConfig struct {
	Users       types.UserRepository
	Resets      types.PasswordResetRepository
	Tokens      types.ResetTokenGenerator
	FeatureGate featuregate.FeatureGate
	TokenTTL    time.Duration
	Clock       types.Clock
	Logger      types.Logger
	Activity    types.ActivitySink
	Hooks       types.Hooks
}

// PasswordResetRequestCommand replaces any outstanding reset token of the
// user with a fresh one.
type PasswordResetRequestCommand struct {
	users    types.UserRepository
	resets   types.PasswordResetRepository
	tokens   types.ResetTokenGenerator
	gate     featuregate.FeatureGate
	ttl      time.Duration
	clock    types.Clock
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

// NewPasswordResetRequestCommand constructs the request handler.
func NewPasswordResetRequestCommand(cfg PasswordResetRequestConfig) *PasswordResetRequestCommand {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultPasswordResetTTL
	}
	return &PasswordResetRequestCommand{
		users:    cfg.Users,
		resets:   cfg.Resets,
		tokens:   cfg.Tokens,
		gate:     cfg.FeatureGate,
		ttl:      ttl,
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}
}

var _ gocommand.Commander[PasswordResetRequestInput] = (*PasswordResetRequestCommand)(nil)

// Execute succeeds silently for unknown or inactive accounts so the caller
// cannot learn which emails exist.
func (c *PasswordResetRequestCommand) Execute(ctx context.Context, input PasswordResetRequestInput) error {
	if c.users == nil {
		return types.ErrMissingUserRepository
	}
	if c.resets == nil {
		return types.ErrMissingPasswordResetRepository
	}
	if c.tokens == nil {
		return ErrMissingResetTokenGenerator
	}
	if err := input.Validate(); err != nil {
		return err
	}

	// System scope first: the answer must not depend on whether the email
	// belongs to an account.
	enabled, err := featureEnabled(ctx, c.gate, featurePasswordReset, uuid.Nil)
	if err != nil {
		return err
	}
	if !enabled {
		return featureDisabled(ErrPasswordResetDisabled)
	}

	email := normalizeEmail(input.Email)
	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		c.logger.Debug("password reset requested for unknown account")
		return nil
	}
	enabled, err = featureEnabled(ctx, c.gate, featurePasswordReset, user.ID)
	if err != nil {
		return err
	}
	if !enabled {
		return featureDisabled(ErrPasswordResetDisabled)
	}

	if err := c.resets.DeleteForUser(ctx, user.ID); err != nil {
		return err
	}
	issuedAt := now(c.clock)
	expiresAt := issuedAt.Add(c.ttl)
	token, err := c.tokens.GenerateResetToken(ctx, *user, expiresAt)
	if err != nil {
		return types.NewServerError(err, "")
	}
	if err := c.resets.Save(ctx, types.PasswordResetToken{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: issuedAt,
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	recordActivity(ctx, c.activity, c.hooks, types.ActivityRecord{
		UserID:     user.ID,
		ActorID:    user.ID,
		Verb:       "user.password.reset.requested",
		ObjectType: "user",
		ObjectID:   user.ID.String(),
		Channel:    "password",
		Data:       map[string]any{"expires_at": expiresAt},
		OccurredAt: issuedAt,
	})

	if input.Result != nil {
		*input.Result = PasswordResetRequestResult{
			User:      user,
			Token:     token,
			ExpiresAt: expiresAt,
		}
	}
	return nil
}
