package mfa

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/password"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/signer"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// versionedUsers mimics the conditional credential write of the Bun
// repository.
type versionedUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func (f *versionedUsers) GetByID(_ context.Context, id uuid.UUID) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	user.Credential.RecoveryCodes = append([]string(nil), user.Credential.RecoveryCodes...)
	return &user, nil
}

func (f *versionedUsers) GetByEmail(context.Context, string) (*types.User, error) { return nil, nil }
func (f *versionedUsers) ExistsByEmail(context.Context, string) (bool, error)     { return false, nil }
func (f *versionedUsers) ExistsByUsername(context.Context, string) (bool, error)  { return false, nil }
func (f *versionedUsers) Create(_ context.Context, user types.User) (*types.User, error) {
	return &user, nil
}

func (f *versionedUsers) Update(_ context.Context, user types.User) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.users[user.ID]
	if !ok || current.Credential.Version != user.Credential.Version {
		return nil, types.ErrStaleRecord
	}
	user.Credential.Version++
	f.users[user.ID] = user
	return &user, nil
}

func (f *versionedUsers) RecordFailedLogin(context.Context, uuid.UUID, int, time.Duration, time.Time) (types.LockoutState, error) {
	return types.LockoutState{}, nil
}

func (f *versionedUsers) ResetFailedLogins(context.Context, uuid.UUID, time.Time) error { return nil }

type stubFeatureGate struct {
	enabled bool
	keys    []string
}

func (s *stubFeatureGate) Enabled(_ context.Context, key string, _ ...featuregate.ResolveOption) (bool, error) {
	s.keys = append(s.keys, key)
	return s.enabled, nil
}

type fixture struct {
	clock  *testClock
	users  *versionedUsers
	engine *Engine
	userID uuid.UUID
}

func newFixture(t *testing.T, gate featuregate.FeatureGate) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)}
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash("Correct4Horse")
	require.NoError(t, err)

	userID := uuid.New()
	users := &versionedUsers{users: map[uuid.UUID]types.User{
		userID: {
			ID:         userID,
			Email:      "alice@example.com",
			IsActive:   true,
			Credential: types.UserCredential{PasswordHash: hash, Version: 1},
		},
	}}
	s, err := signer.New(signer.Config{Issuer: "test", Key: []byte("mfa-key"), Clock: clock})
	require.NoError(t, err)

	engine, err := New(Config{
		Users:       users,
		Signer:      s,
		Hasher:      hasher,
		FeatureGate: gate,
		Issuer:      "Example",
		Clock:       clock,
	})
	require.NoError(t, err)
	return &fixture{clock: clock, users: users, engine: engine, userID: userID}
}

func (f *fixture) enable(t *testing.T) *SetupResult {
	t.Helper()
	setup, err := f.engine.SetupMFA(context.Background(), f.userID)
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.engine.VerifyAndEnable(context.Background(), f.userID, code))
	return setup
}

func (f *fixture) mfaToken(t *testing.T) string {
	t.Helper()
	user, err := f.users.GetByID(context.Background(), f.userID)
	require.NoError(t, err)
	token, err := f.engine.IssueMFAToken(context.Background(), user)
	require.NoError(t, err)
	return token
}

func TestSetupMovesToPendingWithRecoveryCodes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	setup, err := f.engine.SetupMFA(ctx, f.userID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.True(t, strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/"))
	require.Contains(t, setup.ProvisioningURI, "issuer=Example")
	require.Len(t, setup.RecoveryCodes, 10)
	pattern := regexp.MustCompile(`^[0-9A-F]{8}$`)
	for _, code := range setup.RecoveryCodes {
		require.Regexp(t, pattern, code)
	}

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	require.Equal(t, types.MFAStatePending, user.Credential.MFAState())
	require.NotContains(t, user.Credential.RecoveryCodes, setup.RecoveryCodes[0])

	_, err = f.engine.SetupMFA(ctx, f.userID)
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidMFAState))
}

func TestVerifyAndEnable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.True(t, types.HasErrorCode(f.engine.VerifyAndEnable(ctx, f.userID, "123456"), types.ErrorInvalidMFAState))

	setup, err := f.engine.SetupMFA(ctx, f.userID)
	require.NoError(t, err)
	require.True(t, types.HasErrorCode(f.engine.VerifyAndEnable(ctx, f.userID, "12345"), types.ErrorInvalidCode))

	code, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.engine.VerifyAndEnable(ctx, f.userID, code))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	require.Equal(t, types.MFAStateEnabled, user.Credential.MFAState())
}

func TestVerifyLoginCodeAcceptsOneStepOfSkew(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	setup := f.enable(t)
	token := f.mfaToken(t)

	previous, err := totp.GenerateCode(setup.Secret, f.clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	id, err := f.engine.VerifyLoginCode(ctx, token, previous)
	require.NoError(t, err)
	require.Equal(t, f.userID, id)

	stale, err := totp.GenerateCode(setup.Secret, f.clock.Now().Add(-90*time.Second))
	require.NoError(t, err)
	_, err = f.engine.VerifyLoginCode(ctx, token, stale)
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidCode))

	_, err = f.engine.VerifyLoginCode(ctx, "not-a-token", previous)
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidCode))
}

func TestZeroSkewRequiresCurrentStep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	setup := f.enable(t)
	token := f.mfaToken(t)

	var zero uint
	strict, err := New(Config{
		Users:  f.users,
		Signer: f.engine.signer,
		Hasher: f.engine.hasher,
		Skew:   &zero,
		Clock:  f.clock,
	})
	require.NoError(t, err)
	require.Equal(t, uint(defaultSkew), f.engine.skew)

	previous, err := totp.GenerateCode(setup.Secret, f.clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	_, err = strict.VerifyLoginCode(ctx, token, previous)
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidCode))

	current, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	id, err := strict.VerifyLoginCode(ctx, token, current)
	require.NoError(t, err)
	require.Equal(t, f.userID, id)
}

func TestMFATokenExpiresAfterFiveMinutes(t *testing.T) {
	f := newFixture(t, nil)
	setup := f.enable(t)
	token := f.mfaToken(t)

	f.clock.Advance(5*time.Minute + time.Second)
	code, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)
	_, err = f.engine.VerifyLoginCode(context.Background(), token, code)
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidCode))
}

func TestRecoveryCodeIsSingleUse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	setup := f.enable(t)
	token := f.mfaToken(t)

	result, err := f.engine.VerifyRecoveryCode(ctx, token, "  "+strings.ToLower(setup.RecoveryCodes[3])+" ")
	require.NoError(t, err)
	require.Equal(t, f.userID, result.UserID)
	require.Equal(t, 9, result.Remaining)

	_, err = f.engine.VerifyRecoveryCode(ctx, token, setup.RecoveryCodes[3])
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidCode))

	grouped := setup.RecoveryCodes[0][:4] + "-" + setup.RecoveryCodes[0][4:]
	result, err = f.engine.VerifyRecoveryCode(ctx, token, grouped)
	require.NoError(t, err)
	require.Equal(t, 8, result.Remaining)
}

func TestConcurrentRecoveryCodeUseHasOneWinner(t *testing.T) {
	f := newFixture(t, nil)
	setup := f.enable(t)
	token := f.mfaToken(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.VerifyRecoveryCode(context.Background(), token, setup.RecoveryCodes[1]); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestDisableRequiresPasswordAndCode(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	setup := f.enable(t)
	code, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)

	require.True(t, types.HasErrorCode(f.engine.DisableMFA(ctx, f.userID, "wrong", code), types.ErrorInvalidPassword))
	require.True(t, types.HasErrorCode(f.engine.DisableMFA(ctx, f.userID, "Correct4Horse", "000000"), types.ErrorInvalidCode))
	require.NoError(t, f.engine.DisableMFA(ctx, f.userID, "Correct4Horse", code))

	user, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	require.Equal(t, types.MFAStateDisabled, user.Credential.MFAState())
	require.Empty(t, user.Credential.RecoveryCodes)
}

func TestRegenerateRecoveryCodesReplacesOldOnes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	setup := f.enable(t)
	code, err := totp.GenerateCode(setup.Secret, f.clock.Now())
	require.NoError(t, err)

	fresh, err := f.engine.RegenerateRecoveryCodes(ctx, f.userID, code)
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	token := f.mfaToken(t)
	_, err = f.engine.VerifyRecoveryCode(ctx, token, setup.RecoveryCodes[0])
	require.True(t, types.HasErrorCode(err, types.ErrorInvalidCode))
	_, err = f.engine.VerifyRecoveryCode(ctx, token, fresh[0])
	require.NoError(t, err)
}

func TestSetupHonoursFeatureGate(t *testing.T) {
	gate := &stubFeatureGate{enabled: false}
	f := newFixture(t, gate)

	_, err := f.engine.SetupMFA(context.Background(), f.userID)
	require.True(t, types.HasErrorCode(err, types.ErrorFeatureDisabled))
	require.Equal(t, []string{FeatureMFA}, gate.keys)
}
