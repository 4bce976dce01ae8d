package command

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/bruteforce"
	"github.com/goliatone/go-identity/mfa"
	"github.com/goliatone/go-identity/oauth"
	"github.com/goliatone/go-identity/password"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/signer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Correct4Horse"

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

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[uuid.UUID]types.User{}}
}

func (m *memoryUsers) put(user types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *memoryUsers) get(id uuid.UUID) types.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	user, err := m.GetByEmail(ctx, email)
	return user != nil, err
}

func (m *memoryUsers) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username != "" && strings.EqualFold(user.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Credential.Version = 1
	m.users[user.ID] = user
	return &user, nil
}

func (m *memoryUsers) Update(_ context.Context, user types.User) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[user.ID]
	if !ok || current.Credential.Version != user.Credential.Version {
		return nil, types.ErrStaleRecord
	}
	user.Credential.FailedLoginAttempts = current.Credential.FailedLoginAttempts
	user.Credential.LockedUntil = current.Credential.LockedUntil
	user.Credential.Version++
	m.users[user.ID] = user
	return &user, nil
}

func (m *memoryUsers) RecordFailedLogin(_ context.Context, id uuid.UUID, maxAttempts int, lockout time.Duration, now time.Time) (types.LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[id]
	user.Credential.FailedLoginAttempts++
	if user.Credential.FailedLoginAttempts >= maxAttempts {
		user.Credential.LockedUntil = now.Add(lockout)
	}
	m.users[id] = user
	return types.LockoutState{
		FailedAttempts: user.Credential.FailedLoginAttempts,
		LockedUntil:    user.Credential.LockedUntil,
	}, nil
}

func (m *memoryUsers) ResetFailedLogins(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[id]
	user.Credential.FailedLoginAttempts = 0
	user.Credential.LockedUntil = time.Time{}
	user.Credential.LastLoginAt = now
	m.users[id] = user
	return nil
}

type memoryAttempts struct {
	mu       sync.Mutex
	attempts []types.LoginAttempt
}

func (m *memoryAttempts) RecordAttempt(_ context.Context, attempt types.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memoryAttempts) FailureStats(_ context.Context, key types.AttemptKey, since time.Time) (types.AttemptStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats types.AttemptStats
	matches := func(a types.LoginAttempt) bool {
		if key.Email != "" {
			return a.Email == key.Email
		}
		return a.IP == key.IP
	}
	for _, a := range m.attempts {
		if matches(a) && a.Success && a.OccurredAt.After(stats.LastSuccessAt) {
			stats.LastSuccessAt = a.OccurredAt
		}
	}
	if stats.LastSuccessAt.After(since) {
		since = stats.LastSuccessAt
	}
	for _, a := range m.attempts {
		if matches(a) && !a.Success && a.OccurredAt.After(since) {
			stats.Failures++
			if a.OccurredAt.After(stats.LastFailureAt) {
				stats.LastFailureAt = a.OccurredAt
			}
		}
	}
	return stats, nil
}

func (m *memoryAttempts) reasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.attempts))
	for _, a := range m.attempts {
		if a.Success {
			out = append(out, "success")
			continue
		}
		out = append(out, a.FailureReason)
	}
	return out
}

type memorySessions struct {
	mu       sync.Mutex
	sessions []types.Session
	ended    int
}

func (m *memorySessions) CreateSession(_ context.Context, session types.Session) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = uuid.New()
	m.sessions = append(m.sessions, session)
	return &session, nil
}

func (m *memorySessions) EndSessionsForUser(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
	m.ended += n
	return n, nil
}

type issueCall struct {
	user   uuid.UUID
	client *types.Client
	scope  string
}

type recordingIssuer struct {
	mu    sync.Mutex
	calls []issueCall
}

func (r *recordingIssuer) GenerateTokens(_ context.Context, user *types.User, client *types.Client, rawScope, _ string, _ ...oauth.IssueOption) (*oauth.TokenResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, issueCall{user: user.ID, client: client, scope: rawScope})
	return &oauth.TokenResult{
		AccessToken:  "access-" + user.ID.String(),
		TokenType:    oauth.TokenTypeBearer,
		RefreshToken: "refresh-" + user.ID.String(),
		IDToken:      "id-" + user.ID.String(),
		ExpiresIn:    3600,
		Scope:        rawScope,
		UserID:       user.ID,
		ClientID:     client.ClientID,
	}, nil
}

type memoryResets struct {
	mu     sync.Mutex
	tokens map[string]types.PasswordResetToken
}

func newMemoryResets() *memoryResets {
	return &memoryResets{tokens: map[string]types.PasswordResetToken{}}
}

func (m *memoryResets) Save(_ context.Context, token types.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Token] = token
	return nil
}

func (m *memoryResets) GetByToken(_ context.Context, token string) (*types.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *memoryResets) MarkAsUsed(_ context.Context, token string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.tokens[token]
	if !ok || record.IsUsed || !usedAt.Before(record.ExpiresAt) {
		return types.ErrStaleRecord
	}
	record.IsUsed = true
	record.UsedAt = usedAt
	m.tokens[token] = record
	return nil
}

func (m *memoryResets) DeleteForUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, record := range m.tokens {
		if record.UserID == userID {
			delete(m.tokens, token)
		}
	}
	return nil
}

func (m *memoryResets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type countingRefreshTokens struct {
	revokedFor []uuid.UUID
}

func (c *countingRefreshTokens) Save(context.Context, types.RefreshToken) error { return nil }
func (c *countingRefreshTokens) GetByToken(context.Context, string) (*types.RefreshToken, error) {
	return nil, nil
}
func (c *countingRefreshTokens) Revoke(context.Context, string, time.Time) error { return nil }
func (c *countingRefreshTokens) Rotate(context.Context, string, types.RefreshToken, time.Time) error {
	return nil
}
func (c *countingRefreshTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID, _ time.Time) (int, error) {
	c.revokedFor = append(c.revokedFor, userID)
	return 2, nil
}

type sequentialTokens struct {
	n int
}

func (s *sequentialTokens) GenerateResetToken(context.Context, types.User, time.Time) (string, error) {
	s.n++
	return "reset-token-" + string(rune('a'+s.n-1)), nil
}

type recordingActivitySink struct {
	mu      sync.Mutex
	records []types.ActivityRecord
}

func (r *recordingActivitySink) Log(_ context.Context, record types.ActivityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recordingActivitySink) verbs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Verb)
	}
	return out
}

type stubFeatureGate struct {
	enabled bool
	err     error
	keys    []string
}

func (s *stubFeatureGate) Enabled(_ context.Context, key string, _ ...featuregate.ResolveOption) (bool, error) {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return false, s.err
	}
	return s.enabled, nil
}

// harness wires the commands over in-memory stores, the real brute-force
// guard, MFA engine and bcrypt hasher.
type harness struct {
	clock    *testClock
	users    *memoryUsers
	attempts *memoryAttempts
	sessions *memorySessions
	issuer   *recordingIssuer
	resets   *memoryResets
	refresh  *countingRefreshTokens
	activity *recordingActivitySink
	hasher   *password.BcryptHasher
	policy   *password.Policy
	guard    *bruteforce.Guard
	engine   *mfa.Engine
	gate     *stubFeatureGate

	login   *LoginCommand
	loginMF *LoginMFACommand
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    &testClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		users:    newMemoryUsers(),
		attempts: &memoryAttempts{},
		sessions: &memorySessions{},
		issuer:   &recordingIssuer{},
		resets:   newMemoryResets(),
		refresh:  &countingRefreshTokens{},
		activity: &recordingActivitySink{},
		hasher:   password.NewBcryptHasher(bcrypt.MinCost),
		gate:     &stubFeatureGate{enabled: true},
	}
	h.policy = password.NewPolicy(password.PolicyConfig{
		MinLength:    8,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
		Hasher:       h.hasher,
	})

	guard, err := bruteforce.New(bruteforce.Config{
		Attempts:        h.attempts,
		Users:           h.users,
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
		Window:          15 * time.Minute,
		IPMaxAttempts:   20,
		IPWindow:        15 * time.Minute,
		DelayThreshold:  100,
		Clock:           h.clock,
	})
	require.NoError(t, err)
	h.guard = guard

	s, err := signer.New(signer.Config{Issuer: "test", Key: []byte("command-key"), Clock: h.clock})
	require.NoError(t, err)
	engine, err := mfa.New(mfa.Config{Users: h.users, Signer: s, Hasher: h.hasher, Clock: h.clock})
	require.NoError(t, err)
	h.engine = engine

	loginCfg := LoginConfig{
		Users:    h.users,
		Guard:    h.guard,
		Hasher:   h.hasher,
		Sessions: h.sessions,
		Issuer:   h.issuer,
		MFA:      h.engine,
		Clock:    h.clock,
		Activity: h.activity,
	}
	h.login = NewLoginCommand(loginCfg)
	h.loginMF = NewLoginMFACommand(LoginMFAConfig{LoginConfig: loginCfg, Verifier: h.engine})
	return h
}

func (h *harness) seedUser(t *testing.T, email, pw string) types.User {
	t.Helper()
	hash, err := h.hasher.Hash(pw)
	require.NoError(t, err)
	user := types.User{
		ID:       uuid.New(),
		Email:    email,
		IsActive: true,
		Credential: types.UserCredential{
			PasswordHash: hash,
			Version:      1,
		},
	}
	h.users.put(user)
	return user
}

func (h *harness) passwordConfig() PasswordConfig {
	return PasswordConfig{
		Users:        h.users,
		Hasher:       h.hasher,
		Policy:       h.policy,
		Resets:       h.resets,
		HistoryDepth: 3,
		Clock:        h.clock,
		Activity:     h.activity,
	}
}
