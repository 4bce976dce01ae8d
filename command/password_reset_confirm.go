package command

import (
	"context"
	"errors"
	"strings"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/pkg/types"
)

// PasswordResetConfirmInput consumes a reset token and sets a new password.
type PasswordResetConfirmInput struct {
	Token       string
	NewPassword string
	Result      *PasswordResetConfirmResult
}

// Type implements gocommand.Message.
func (PasswordResetConfirmInput) Type() string {
	return "command.auth.password_reset.confirm"
}

// Validate implements gocommand.Message.
func (input PasswordResetConfirmInput) Validate() error {
	switch {
	case strings.TrimSpace(input.Token) == "":
		return ErrResetTokenRequired
	case input.NewPassword == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// PasswordResetConfirmResult reports what the reset invalidated.
type PasswordResetConfirmResult struct {
	User                 *types.User
	RevokedRefreshTokens int
	EndedSessions        int
}

// PasswordResetConfirmConfig holds dependencies for reset confirmation.
// RefreshTokens and Sessions are optional; when set, a reset also signs the
// user out everywhere.
type PasswordResetConfirmConfig struct {
	PasswordConfig
	FeatureGate   featuregate.FeatureGate
	RefreshTokens types.RefreshTokenRepository
	Sessions      types.SessionTerminator
}

// PasswordResetConfirmCommand validates reset tokens and applies the reset.
type PasswordResetConfirmCommand struct {
	writer   *passwordWriter
	gate     featuregate.FeatureGate
	refresh  types.RefreshTokenRepository
	sessions types.SessionTerminator
}

// NewPasswordResetConfirmCommand constructs the confirmation handler.
func NewPasswordResetConfirmCommand(cfg PasswordResetConfirmConfig) *PasswordResetConfirmCommand {
	return &PasswordResetConfirmCommand{
		writer:   newPasswordWriter(cfg.PasswordConfig),
		gate:     cfg.FeatureGate,
		refresh:  cfg.RefreshTokens,
		sessions: cfg.Sessions,
	}
}

var _ gocommand.Commander[PasswordResetConfirmInput] = (*PasswordResetConfirmCommand)(nil)

// Execute fails with invalid_token for unknown, used or expired tokens. The
// token is consumed before the password is written so it works exactly once.
func (c *PasswordResetConfirmCommand) Execute(ctx context.Context, input PasswordResetConfirmInput) error {
	if err := c.writer.ready(); err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}
	token := strings.TrimSpace(input.Token)
	record, err := c.writer.resets.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	at := now(c.writer.clock)
	if !record.IsValid(at) {
		return invalidResetToken()
	}
	enabled, err := featureEnabled(ctx, c.gate, featurePasswordReset, record.UserID)
	if err != nil {
		return err
	}
	if !enabled {
		return featureDisabled(ErrPasswordResetDisabled)
	}
	user, err := c.writer.users.GetByID(ctx, record.UserID)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive {
		return invalidResetToken()
	}

	// Policy failures leave the token usable for another attempt.
	if err := c.writer.validate(user, input.NewPassword); err != nil {
		return err
	}
	if err := c.writer.resets.MarkAsUsed(ctx, token, at); err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			return invalidResetToken()
		}
		return err
	}
	if err := c.writer.store(ctx, user, input.NewPassword, "user.password.reset"); err != nil {
		return err
	}

	result := PasswordResetConfirmResult{User: user}
	if c.refresh != nil {
		n, err := c.refresh.RevokeAllForUser(ctx, user.ID, at)
		if err != nil {
			c.writer.logger.Error("revoke refresh tokens after reset failed", err, "user_id", user.ID.String())
		}
		result.RevokedRefreshTokens = n
	}
	if c.sessions != nil {
		n, err := c.sessions.EndSessionsForUser(ctx, user.ID)
		if err != nil {
			c.writer.logger.Error("end sessions after reset failed", err, "user_id", user.ID.String())
		}
		result.EndedSessions = n
	}
	if input.Result != nil {
		*input.Result = result
	}
	return nil
}

func invalidResetToken() error {
	return types.NewValidationError(types.ErrorInvalidToken, "reset token is invalid or expired")
}
