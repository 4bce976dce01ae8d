package types

import (
	goerrors "github.com/goliatone/go-errors"
)

// RFC6749 error codes.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorInvalidClient           = "invalid_client"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorUnauthorizedClient      = "unauthorized_client"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
	ErrorInvalidScope            = "invalid_scope"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorServerError             = "server_error"
	// ErrorInsufficientScope is the RFC6750 bearer token error.
	ErrorInsufficientScope = "insufficient_scope"
)

// Login failure codes.
const (
	ErrorInvalidCredentials = "invalid_credentials"
	ErrorAccountLocked      = "account_locked"
	ErrorAccountDisabled    = "account_disabled"
	ErrorIPBlocked          = "ip_blocked"
	ErrorTooManyAttempts    = "too_many_attempts"
	ErrorRequiresMFA        = "requires_mfa"
)

// Registration and credential management codes.
const (
	ErrorWeakPassword    = "weak_password"
	ErrorEmailExists     = "email_exists"
	ErrorUsernameExists  = "username_exists"
	ErrorInvalidCode     = "invalid_code"
	ErrorInvalidPassword = "invalid_password"
	ErrorInvalidMFAState = "invalid_mfa_state"
	ErrorInvalidToken    = "invalid_token"
	ErrorFeatureDisabled = "feature_disabled"
)

// NewOAuthError builds a client facing OAuth2 error. The RFC6749 code is carried
// in TextCode so transports can render {error, error_description}.
func NewOAuthError(code, description string) *goerrors.Error {
	category := goerrors.CategoryValidation
	status := goerrors.CodeBadRequest
	switch code {
	case ErrorInvalidClient:
		category = goerrors.CategoryAuth
		status = goerrors.CodeUnauthorized
	case ErrorUnauthorizedClient:
		category = goerrors.CategoryAuthz
		status = goerrors.CodeForbidden
	case ErrorServerError:
		category = goerrors.CategoryInternal
		status = goerrors.CodeInternal
	}
	return goerrors.New(description, category).
		WithCode(status).
		WithTextCode(code)
}

// NewInvalidGrant returns the undifferentiated invalid_grant error used for
// every expired, used or mismatched code or token.
func NewInvalidGrant() *goerrors.Error {
	return NewOAuthError(ErrorInvalidGrant, "the provided grant is invalid, expired or revoked")
}

// NewAuthError builds a login failure.
func NewAuthError(code, message string) *goerrors.Error {
	status := goerrors.CodeUnauthorized
	category := goerrors.CategoryAuth
	switch code {
	case ErrorAccountLocked, ErrorIPBlocked, ErrorTooManyAttempts, ErrorAccountDisabled:
		category = goerrors.CategoryAuthz
		status = goerrors.CodeForbidden
	}
	return goerrors.New(message, category).
		WithCode(status).
		WithTextCode(code)
}

// NewValidationError builds a registration or credential failure.
func NewValidationError(code, message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(code)
}

// ErrorCode extracts the text code from a rich error, or "" for plain errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// HasErrorCode reports whether err carries the given text code.
func HasErrorCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// NewServerError wraps an unexpected failure as server_error. The cause stays
// attached for logging but the description is generic.
func NewServerError(err error, message string) *goerrors.Error {
	if message == "" {
		message = "the server encountered an unexpected condition"
	}
	if err == nil {
		return NewOAuthError(ErrorServerError, message)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal).
		WithTextCode(ErrorServerError)
}

// ErrorDescription returns the client facing message of a rich error.
func ErrorDescription(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Message
	}
	return ""
}

// NewWeakPasswordError reports every policy violation as a field error on
// "password".
func NewWeakPasswordError(violations []string) *goerrors.Error {
	fields := make([]goerrors.FieldError, 0, len(violations))
	for _, violation := range violations {
		fields = append(fields, goerrors.FieldError{Field: "password", Message: violation})
	}
	return goerrors.NewValidation("password does not meet the policy", fields...).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(ErrorWeakPassword).
		WithMetadata(map[string]any{"violations": violations})
}
