package command

import (
	"errors"

	"github.com/goliatone/go-identity/pkg/types"
)

var (
	// ErrEmailRequired indicates an email address was not supplied.
	ErrEmailRequired = errors.New("go-identity: email required")
	// ErrPasswordRequired indicates a password was not supplied.
	ErrPasswordRequired = errors.New("go-identity: password required")
	// ErrCodeRequired indicates an MFA login omitted the code or token.
	ErrCodeRequired = errors.New("go-identity: mfa token and code required")
	// ErrResetTokenRequired indicates a reset confirmation lacked the token.
	ErrResetTokenRequired = errors.New("go-identity: password reset token required")
	// ErrUserIDRequired occurs when a command omits the user.
	ErrUserIDRequired = types.ErrUserIDRequired
	// ErrSignupDisabled indicates self-registration is disabled via feature gate.
	ErrSignupDisabled = errors.New("go-identity: signup disabled")
	// ErrPasswordResetDisabled indicates password reset is disabled via feature gate.
	ErrPasswordResetDisabled = errors.New("go-identity: password reset disabled")
	// ErrMissingMFAVerifier occurs when MFA logins have no engine.
	ErrMissingMFAVerifier = errors.New("go-identity: missing mfa verifier")
	// ErrMissingBruteForceGuard occurs when login has no guard.
	ErrMissingBruteForceGuard = errors.New("go-identity: missing brute force guard")
	// ErrMissingTokenIssuer occurs when login cannot mint tokens.
	ErrMissingTokenIssuer = errors.New("go-identity: missing token issuer")
	// ErrMissingPasswordPolicy occurs when password flows have no policy.
	ErrMissingPasswordPolicy = errors.New("go-identity: missing password policy")
	// ErrMissingResetTokenGenerator occurs when resets cannot mint tokens.
	ErrMissingResetTokenGenerator = errors.New("go-identity: missing reset token generator")
)
