package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity/mfa"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

// MFAVerifier checks second factors against the user named by a step-up
// token.
type MFAVerifier interface {
	TokenSubject(ctx context.Context, mfaToken string) (uuid.UUID, error)
	VerifyLoginCode(ctx context.Context, mfaToken, code string) (uuid.UUID, error)
	VerifyRecoveryCode(ctx context.Context, mfaToken, code string) (*mfa.RecoveryResult, error)
}

// LoginMFAInput completes a login that returned RequiresMFA. Exactly one of
// Code or RecoveryCode is used, Code taking precedence.
type LoginMFAInput struct {
	MFAToken     string
	Code         string
	RecoveryCode string
	IP           string
	UserAgent    string
	Result       *LoginMFAResult
}

// Type implements gocommand.Message.
func (LoginMFAInput) Type() string {
	return "command.auth.login_mfa"
}

// Validate implements gocommand.Message.
func (input LoginMFAInput) Validate() error {
	if strings.TrimSpace(input.MFAToken) == "" {
		return ErrCodeRequired
	}
	if strings.TrimSpace(input.Code) == "" && strings.TrimSpace(input.RecoveryCode) == "" {
		return ErrCodeRequired
	}
	return nil
}

// LoginMFAResult is a completed login plus the recovery codes left when one
// was consumed.
type LoginMFAResult struct {
	LoginResult
	RecoveryCodeUsed       bool
	RemainingRecoveryCodes int
}

// LoginMFAConfig holds dependencies for the MFA step of a login.
type LoginMFAConfig struct {
	LoginConfig
	Verifier MFAVerifier
}

// LoginMFACommand verifies a TOTP or recovery code and completes the login.
type LoginMFACommand struct {
	users    types.UserRepository
	verifier MFAVerifier
	finish   *loginFinisher
}

// NewLoginMFACommand constructs the MFA login handler.
func NewLoginMFACommand(cfg LoginMFAConfig) *LoginMFACommand {
	return &LoginMFACommand{
		users:    cfg.Users,
		verifier: cfg.Verifier,
		finish:   newLoginFinisher(cfg.LoginConfig),
	}
}

var _ gocommand.Commander[LoginMFAInput] = (*LoginMFACommand)(nil)

// Execute verifies the second factor. Failed codes count against the account
// like failed passwords.
func (c *LoginMFACommand) Execute(ctx context.Context, input LoginMFAInput) error {
	if c.users == nil {
		return types.ErrMissingUserRepository
	}
	if c.verifier == nil {
		return ErrMissingMFAVerifier
	}
	if err := c.finish.ready(); err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}

	var (
		userID    uuid.UUID
		recovery  *mfa.RecoveryResult
		verifyErr error
	)
	if strings.TrimSpace(input.Code) != "" {
		userID, verifyErr = c.verifier.VerifyLoginCode(ctx, input.MFAToken, input.Code)
	} else {
		recovery, verifyErr = c.verifier.VerifyRecoveryCode(ctx, input.MFAToken, input.RecoveryCode)
		if recovery != nil {
			userID = recovery.UserID
		}
	}
	if verifyErr != nil {
		c.recordFailure(ctx, input)
		return verifyErr
	}

	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || !user.CanLogin(now(c.finish.clock)) {
		return invalidCredentials()
	}

	result, err := c.finish.complete(ctx, user, loginContext{
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Methods:   []string{AuthMethodPassword, AuthMethodOTP},
	})
	if err != nil {
		return err
	}
	if input.Result != nil {
		*input.Result = LoginMFAResult{LoginResult: *result}
		if recovery != nil {
			input.Result.RecoveryCodeUsed = true
			input.Result.RemainingRecoveryCodes = recovery.Remaining
		}
	}
	return nil
}

// recordFailure charges a wrong code to the account when the step-up token
// still names a user.
func (c *LoginMFACommand) recordFailure(ctx context.Context, input LoginMFAInput) {
	attempt := types.AttemptInput{
		IP:            input.IP,
		UserAgent:     input.UserAgent,
		FailureReason: types.FailureReasonInvalidMFA,
	}
	if subject, err := c.verifier.TokenSubject(ctx, input.MFAToken); err == nil && subject != uuid.Nil {
		user, err := c.users.GetByID(ctx, subject)
		if err == nil && user != nil {
			attempt.UserID = user.ID
			attempt.Email = user.Email
		}
	}
	if err := c.finish.guard.RecordAttempt(ctx, attempt); err != nil {
		c.finish.logger.Error("record mfa attempt failed", err)
	}
}
