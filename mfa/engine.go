// Package mfa implements TOTP enrollment, verification and one-time recovery
// codes on top of the user credential.
package mfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// FeatureMFA gates enrollment. Verification of already enrolled users is
// never gated.
const FeatureMFA = "identity.mfa"

// Activity verbs.
const (
	ActivitySetup       = "mfa.setup"
	ActivityEnabled     = "mfa.enabled"
	ActivityDisabled    = "mfa.disabled"
	ActivityRecovery    = "mfa.recovery_code.used"
	ActivityRegenerated = "mfa.recovery_code.regenerated"
	ActivityFailed      = "mfa.verify.failed"
)

const (
	totpPeriod          = 30
	secretSize          = 20
	recoveryCodeBytes   = 4
	defaultRecoverySize = 10
	defaultTokenTTL     = 5 * time.Minute
	defaultIssuer       = "go-identity"
	defaultSkew         = 1
)

// Config wires the engine.
type Config struct {
	Users  types.UserRepository
	Signer types.Signer
	// Hasher verifies the current password when MFA is disabled.
	Hasher      types.PasswordHasher
	FeatureGate featuregate.FeatureGate
	// Issuer labels the account in authenticator apps.
	Issuer string
	// Skew is the number of 30s steps accepted either side of now. Nil
	// means one step; point at zero to require the current step only.
	Skew              *uint
	RecoveryCodeCount int
	TokenTTL          time.Duration
	Clock             types.Clock
	IDGen             types.IDGenerator
	Logger            types.Logger
	Activity          types.ActivitySink
	Hooks             types.Hooks
}

// Engine drives the disabled -> pending -> enabled -> disabled state machine.
type Engine struct {
	users    types.UserRepository
	signer   types.Signer
	hasher   types.PasswordHasher
	gate     featuregate.FeatureGate
	issuer   string
	skew     uint
	codes    int
	tokenTTL time.Duration
	clock    types.Clock
	ids      types.IDGenerator
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

// SetupResult is handed to the user once: the secret for manual entry, the
// otpauth URI for QR rendering and the plaintext recovery codes.
type SetupResult struct {
	Secret          string
	ProvisioningURI string
	RecoveryCodes   []string
}

// RecoveryResult reports a consumed recovery code.
type RecoveryResult struct {
	UserID    uuid.UUID
	Remaining int
}

// New validates cfg and builds an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Users == nil {
		return nil, types.ErrMissingUserRepository
	}
	if cfg.Signer == nil {
		return nil, types.ErrMissingSigner
	}
	if cfg.Hasher == nil {
		return nil, types.ErrMissingPasswordHasher
	}
	e := &Engine{
		users:    cfg.Users,
		signer:   cfg.Signer,
		hasher:   cfg.Hasher,
		gate:     cfg.FeatureGate,
		issuer:   strings.TrimSpace(cfg.Issuer),
		skew:     defaultSkew,
		codes:    cfg.RecoveryCodeCount,
		tokenTTL: cfg.TokenTTL,
		clock:    cfg.Clock,
		ids:      cfg.IDGen,
		logger:   cfg.Logger,
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}
	if e.issuer == "" {
		e.issuer = defaultIssuer
	}
	if cfg.Skew != nil {
		e.skew = *cfg.Skew
	}
	if e.codes <= 0 {
		e.codes = defaultRecoverySize
	}
	if e.tokenTTL <= 0 {
		e.tokenTTL = defaultTokenTTL
	}
	if e.clock == nil {
		e.clock = types.SystemClock{}
	}
	if e.ids == nil {
		e.ids = types.UUIDGenerator{}
	}
	if e.logger == nil {
		e.logger = types.NopLogger{}
	}
	return e, nil
}

func invalidCode() error {
	return types.NewAuthError(types.ErrorInvalidCode, "invalid code")
}

func invalidPassword() error {
	return types.NewAuthError(types.ErrorInvalidPassword, "invalid password")
}

func invalidState(message string) error {
	return types.NewValidationError(types.ErrorInvalidMFAState, message)
}

// SetupMFA starts enrollment. It is only valid while MFA is disabled.
func (e *Engine) SetupMFA(ctx context.Context, userID uuid.UUID) (*SetupResult, error) {
	if e.gate != nil {
		enabled, err := e.gate.Enabled(ctx, FeatureMFA, featuregate.WithScopeSet(featuregate.ScopeSet{System: true, UserID: userID.String()}))
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, types.NewValidationError(types.ErrorFeatureDisabled, "multi-factor enrollment is disabled")
		}
	}
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Credential.MFAState() != types.MFAStateDisabled {
		return nil, invalidState("multi-factor authentication is already set up")
	}
	account := user.Email
	if account == "" {
		account = user.Username
	}
	if account == "" {
		account = user.Subject()
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  secretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	codes, hashed, err := e.newRecoveryCodes()
	if err != nil {
		return nil, types.NewServerError(err, "")
	}

	user.Credential.MFASecret = key.Secret()
	user.Credential.MFAEnabled = false
	user.Credential.RecoveryCodes = hashed
	if _, err := e.users.Update(ctx, *user); err != nil {
		return nil, e.mapUpdateError(err)
	}
	e.record(ctx, user.ID, ActivitySetup, nil)
	return &SetupResult{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		RecoveryCodes:   codes,
	}, nil
}

// VerifyAndEnable confirms the first TOTP code of a pending enrollment.
func (e *Engine) VerifyAndEnable(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Credential.MFAState() != types.MFAStatePending {
		return invalidState("multi-factor authentication is not pending verification")
	}
	if !e.validTOTP(user.Credential.MFASecret, code) {
		e.record(ctx, user.ID, ActivityFailed, map[string]any{"stage": "enable"})
		return invalidCode()
	}
	user.Credential.MFAEnabled = true
	if _, err := e.users.Update(ctx, *user); err != nil {
		return e.mapUpdateError(err)
	}
	e.record(ctx, user.ID, ActivityEnabled, nil)
	return nil
}

// IssueMFAToken mints the short lived step-up token handed out when a
// password login needs a second factor.
func (e *Engine) IssueMFAToken(ctx context.Context, user *types.User) (string, error) {
	if user == nil {
		return "", types.ErrUserIDRequired
	}
	now := e.clock.Now()
	return e.signer.CreateMFAToken(ctx, types.MFATokenClaims{
		Subject:   user.Subject(),
		JTI:       e.ids.UUID().String(),
		IssuedAt:  now,
		ExpiresAt: now.Add(e.tokenTTL),
	})
}

// VerifyLoginCode checks a TOTP code against the user named by mfaToken.
func (e *Engine) VerifyLoginCode(ctx context.Context, mfaToken, code string) (uuid.UUID, error) {
	user, err := e.userFromToken(ctx, mfaToken)
	if err != nil {
		return uuid.Nil, err
	}
	if !e.validTOTP(user.Credential.MFASecret, code) {
		e.record(ctx, user.ID, ActivityFailed, map[string]any{"stage": "login"})
		return uuid.Nil, invalidCode()
	}
	return user.ID, nil
}

// VerifyRecoveryCode consumes one recovery code of the user named by
// mfaToken. A code is accepted at most once even under concurrent requests.
func (e *Engine) VerifyRecoveryCode(ctx context.Context, mfaToken, code string) (*RecoveryResult, error) {
	user, err := e.userFromToken(ctx, mfaToken)
	if err != nil {
		return nil, err
	}
	digest := hashRecoveryCode(normalizeRecoveryCode(code))
	remaining, ok := removeRecoveryCode(user.Credential.RecoveryCodes, digest)
	if !ok {
		e.record(ctx, user.ID, ActivityFailed, map[string]any{"stage": "recovery"})
		return nil, invalidCode()
	}
	user.Credential.RecoveryCodes = remaining
	if _, err := e.users.Update(ctx, *user); err != nil {
		if errors.Is(err, types.ErrStaleRecord) {
			return nil, invalidCode()
		}
		return nil, types.NewServerError(err, "")
	}
	e.record(ctx, user.ID, ActivityRecovery, map[string]any{"remaining": len(remaining)})
	return &RecoveryResult{UserID: user.ID, Remaining: len(remaining)}, nil
}

// DisableMFA requires the current password and a valid TOTP code.
func (e *Engine) DisableMFA(ctx context.Context, userID uuid.UUID, password, code string) error {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Credential.MFAState() != types.MFAStateEnabled {
		return invalidState("multi-factor authentication is not enabled")
	}
	if !e.hasher.Verify(user.Credential.PasswordHash, password) {
		return invalidPassword()
	}
	if !e.validTOTP(user.Credential.MFASecret, code) {
		e.record(ctx, user.ID, ActivityFailed, map[string]any{"stage": "disable"})
		return invalidCode()
	}
	user.Credential.MFAEnabled = false
	user.Credential.MFASecret = ""
	user.Credential.RecoveryCodes = nil
	if _, err := e.users.Update(ctx, *user); err != nil {
		return e.mapUpdateError(err)
	}
	e.record(ctx, user.ID, ActivityDisabled, nil)
	return nil
}

// RegenerateRecoveryCodes replaces every recovery code after a valid TOTP
// code.
func (e *Engine) RegenerateRecoveryCodes(ctx context.Context, userID uuid.UUID, code string) ([]string, error) {
	user, err := e.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Credential.MFAState() != types.MFAStateEnabled {
		return nil, invalidState("multi-factor authentication is not enabled")
	}
	if !e.validTOTP(user.Credential.MFASecret, code) {
		e.record(ctx, user.ID, ActivityFailed, map[string]any{"stage": "regenerate"})
		return nil, invalidCode()
	}
	codes, hashed, err := e.newRecoveryCodes()
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	user.Credential.RecoveryCodes = hashed
	if _, err := e.users.Update(ctx, *user); err != nil {
		return nil, e.mapUpdateError(err)
	}
	e.record(ctx, user.ID, ActivityRegenerated, map[string]any{"count": len(codes)})
	return codes, nil
}

func (e *Engine) validTOTP(secret, code string) bool {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.clock.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      e.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// TokenSubject returns the user named by a valid, unexpired step-up token.
func (e *Engine) TokenSubject(ctx context.Context, mfaToken string) (uuid.UUID, error) {
	decoded, err := e.signer.DecodeToken(ctx, mfaToken)
	if err != nil || decoded == nil || decoded.Use != types.TokenUseMFA {
		return uuid.Nil, invalidCode()
	}
	id, err := uuid.Parse(decoded.Subject)
	if err != nil {
		return uuid.Nil, invalidCode()
	}
	return id, nil
}

func (e *Engine) userFromToken(ctx context.Context, mfaToken string) (*types.User, error) {
	id, err := e.TokenSubject(ctx, mfaToken)
	if err != nil {
		return nil, err
	}
	user, err := e.users.GetByID(ctx, id)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if user == nil || !user.IsActive || user.Credential.MFAState() != types.MFAStateEnabled {
		return nil, invalidCode()
	}
	return user, nil
}

func (e *Engine) loadUser(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	if userID == uuid.Nil {
		return nil, types.ErrUserIDRequired
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if user == nil {
		return nil, invalidState("user not found")
	}
	return user, nil
}

func (e *Engine) mapUpdateError(err error) error {
	if errors.Is(err, types.ErrStaleRecord) {
		return invalidState("credential changed concurrently, retry")
	}
	return types.NewServerError(err, "")
}

func (e *Engine) record(ctx context.Context, userID uuid.UUID, verb string, data map[string]any) {
	record := types.ActivityRecord{
		UserID:     userID,
		ActorID:    userID,
		Verb:       verb,
		ObjectType: "user",
		ObjectID:   userID.String(),
		Channel:    "mfa",
		Data:       data,
		OccurredAt: e.clock.Now(),
	}
	if e.activity != nil {
		_ = e.activity.Log(ctx, record)
	}
	if e.hooks.AfterActivity != nil {
		e.hooks.AfterActivity(ctx, record)
	}
}

// newRecoveryCodes returns the plaintext codes and the digests to store.
func (e *Engine) newRecoveryCodes() ([]string, []string, error) {
	codes := make([]string, 0, e.codes)
	hashed := make([]string, 0, e.codes)
	seen := make(map[string]struct{}, e.codes)
	for len(codes) < e.codes {
		buf := make([]byte, recoveryCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, nil, err
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
		hashed = append(hashed, hashRecoveryCode(code))
	}
	return codes, hashed, nil
}

// normalizeRecoveryCode trims and uppercases code. Hyphens are dropped as
// well so a code typed in two groups ("ABCD-1234") still matches; issued
// codes never contain one.
func normalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}

func hashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func removeRecoveryCode(stored []string, digest string) ([]string, bool) {
	for i, candidate := range stored {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(digest)) == 1 {
			remaining := make([]string, 0, len(stored)-1)
			remaining = append(remaining, stored[:i]...)
			remaining = append(remaining, stored[i+1:]...)
			return remaining, true
		}
	}
	return stored, false
}
