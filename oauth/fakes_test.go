package oauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity/password"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/signer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

type fakeClients struct {
	clients map[string]*types.Client
}

func (f *fakeClients) GetByClientID(_ context.Context, clientID string) (*types.Client, error) {
	client, ok := f.clients[clientID]
	if !ok {
		return nil, nil
	}
	clone := *client
	return &clone, nil
}

type fakeCodes struct {
	mu    sync.Mutex
	codes map[string]types.AuthorizationCode
}

func (f *fakeCodes) Save(_ context.Context, code types.AuthorizationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[code.Code] = code
	return nil
}

func (f *fakeCodes) GetByCode(_ context.Context, code string) (*types.AuthorizationCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.codes[code]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

func (f *fakeCodes) MarkAsUsed(_ context.Context, code string, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.codes[code]
	if !ok || stored.IsUsed {
		return types.ErrStaleRecord
	}
	stored.IsUsed = true
	stored.UsedAt = usedAt
	f.codes[code] = stored
	return nil
}

type fakeRefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]types.RefreshToken
}

func (f *fakeRefreshTokens) Save(_ context.Context, token types.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token.Token] = token
	return nil
}

func (f *fakeRefreshTokens) GetByToken(_ context.Context, token string) (*types.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tokens[token]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

func (f *fakeRefreshTokens) Revoke(_ context.Context, token string, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tokens[token]
	if !ok || stored.IsRevoked {
		return nil
	}
	stored.IsRevoked = true
	stored.RevokedAt = revokedAt
	f.tokens[token] = stored
	return nil
}

func (f *fakeRefreshTokens) Rotate(_ context.Context, current string, next types.RefreshToken, rotatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.tokens[current]
	if !ok || !stored.IsValid(rotatedAt) {
		return types.ErrStaleRecord
	}
	stored.IsRevoked = true
	stored.RevokedAt = rotatedAt
	stored.ReplacedBy = next.Token
	f.tokens[current] = stored
	next.ParentToken = current
	f.tokens[next.Token] = next
	return nil
}

func (f *fakeRefreshTokens) RevokeAllForUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for key, token := range f.tokens {
		if token.UserID == userID && !token.IsRevoked {
			token.IsRevoked = true
			token.RevokedAt = revokedAt
			f.tokens[key] = token
			count++
		}
	}
	return count, nil
}

type fakeBlacklist struct {
	mu      sync.Mutex
	entries map[string]types.TokenBlacklistEntry
}

func (f *fakeBlacklist) Add(_ context.Context, entry types.TokenBlacklistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.JTI] = entry
	return nil
}

func (f *fakeBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[jti]
	return ok, nil
}

func (f *fakeBlacklist) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for jti, entry := range f.entries {
		if !entry.ExpiresAt.After(now) {
			delete(f.entries, jti)
			count++
		}
	}
	return count, nil
}

type fakeConsents struct {
	consents map[string]types.Consent
}

func consentKey(userID uuid.UUID, clientID string) string {
	return userID.String() + "|" + clientID
}

func (f *fakeConsents) GetByUserAndClient(_ context.Context, userID uuid.UUID, clientID string) (*types.Consent, error) {
	consent, ok := f.consents[consentKey(userID, clientID)]
	if !ok {
		return nil, nil
	}
	return &consent, nil
}

func (f *fakeConsents) Save(_ context.Context, consent types.Consent) (*types.Consent, error) {
	if consent.ID == uuid.Nil {
		consent.ID = uuid.New()
	}
	f.consents[consentKey(consent.UserID, consent.ClientID)] = consent
	return &consent, nil
}

func (f *fakeConsents) Delete(_ context.Context, userID uuid.UUID, clientID string) error {
	delete(f.consents, consentKey(userID, clientID))
	return nil
}

type fakeUsers struct {
	users map[uuid.UUID]*types.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*types.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*types.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	user, _ := f.GetByEmail(ctx, email)
	return user != nil, nil
}

func (f *fakeUsers) ExistsByUsername(_ context.Context, username string) (bool, error) {
	for _, user := range f.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) Create(_ context.Context, user types.User) (*types.User, error) {
	f.users[user.ID] = &user
	return &user, nil
}

func (f *fakeUsers) Update(_ context.Context, user types.User) (*types.User, error) {
	f.users[user.ID] = &user
	return &user, nil
}

func (f *fakeUsers) RecordFailedLogin(context.Context, uuid.UUID, int, time.Duration, time.Time) (types.LockoutState, error) {
	return types.LockoutState{}, nil
}

func (f *fakeUsers) ResetFailedLogins(context.Context, uuid.UUID, time.Time) error {
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []types.ActivityRecord
}

func (s *recordingSink) Log(_ context.Context, record types.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordingSink) verbs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Verb)
	}
	return out
}

const (
	testClientID     = "my-client"
	testClientSecret = "s3cr3t-value"
	testRedirectURI  = "https://x/cb"
	testVerifier     = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

type harness struct {
	clock     *testClock
	hasher    *password.BcryptHasher
	clients   *fakeClients
	codes     *fakeCodes
	refresh   *fakeRefreshTokens
	blacklist *fakeBlacklist
	consents  *fakeConsents
	users     *fakeUsers
	sink      *recordingSink
	signer    *signer.JWTSigner
	issuer    *TokenIssuer
	flow      *AuthorizationFlow
	rotator   *RefreshTokenRotator
	tracker   *ConsentTracker
	server    *Server
	user      *types.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newTestClock()
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	secretHash, err := hasher.Hash(testClientSecret)
	require.NoError(t, err)

	h := &harness{
		clock:  clock,
		hasher: hasher,
		clients: &fakeClients{clients: map[string]*types.Client{
			testClientID: {
				ID:            uuid.New(),
				ClientID:      testClientID,
				Name:          "My Client",
				SecretHash:    secretHash,
				Type:          types.ClientTypeConfidential,
				RedirectURIs:  []string{testRedirectURI},
				AllowedScopes: []string{"openid", "profile", "email", "offline_access"},
				GrantTypes:    []string{types.GrantTypeAuthorizationCode, types.GrantTypeRefreshToken, types.GrantTypeClientCredentials},
				IsActive:      true,
			},
			"spa": {
				ClientID:      "spa",
				Type:          types.ClientTypePublic,
				RedirectURIs:  []string{"https://spa/cb"},
				AllowedScopes: []string{"openid", "profile"},
				IsActive:      true,
				RequirePKCE:   true,
			},
		}},
		codes:     &fakeCodes{codes: map[string]types.AuthorizationCode{}},
		refresh:   &fakeRefreshTokens{tokens: map[string]types.RefreshToken{}},
		blacklist: &fakeBlacklist{entries: map[string]types.TokenBlacklistEntry{}},
		consents:  &fakeConsents{consents: map[string]types.Consent{}},
		users:     &fakeUsers{users: map[uuid.UUID]*types.User{}},
		sink:      &recordingSink{},
	}

	h.user = &types.User{
		ID:            uuid.New(),
		Email:         "alice@example.com",
		Username:      "alice",
		Roles:         []string{"member"},
		IsActive:      true,
		EmailVerified: true,
		Profile:       types.UserProfile{GivenName: "Alice", FamilyName: "Liddell"},
	}
	h.users.users[h.user.ID] = h.user

	h.signer, err = signer.New(signer.Config{
		Issuer: "https://id.example.com",
		Key:    []byte("oauth-test-key"),
		Clock:  clock,
	})
	require.NoError(t, err)

	h.issuer, err = NewTokenIssuer(IssuerConfig{
		Signer:        h.signer,
		RefreshTokens: h.refresh,
		ClientHasher:  hasher,
		Clock:         clock,
	})
	require.NoError(t, err)

	h.flow, err = NewAuthorizationFlow(FlowConfig{
		Clients:      h.clients,
		Codes:        h.codes,
		Users:        h.users,
		Issuer:       h.issuer,
		ClientHasher: hasher,
		Clock:        clock,
		Activity:     h.sink,
	})
	require.NoError(t, err)

	h.rotator, err = NewRefreshTokenRotator(RotatorConfig{
		Clients:       h.clients,
		RefreshTokens: h.refresh,
		Users:         h.users,
		Issuer:        h.issuer,
		ClientHasher:  hasher,
		Clock:         clock,
		Activity:      h.sink,
	})
	require.NoError(t, err)

	h.tracker, err = NewConsentTracker(ConsentConfig{Consents: h.consents, Clock: clock})
	require.NoError(t, err)

	h.server, err = NewServer(ServerConfig{
		Flow:          h.flow,
		Rotator:       h.rotator,
		Issuer:        h.issuer,
		Consents:      h.tracker,
		Clients:       h.clients,
		Users:         h.users,
		RefreshTokens: h.refresh,
		Blacklist:     h.blacklist,
		Signer:        h.signer,
		ClientHasher:  hasher,
		Clock:         clock,
		Activity:      h.sink,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) issueCode(t *testing.T, rawScope string) string {
	t.Helper()
	code, err := h.flow.CreateAuthorizationCode(context.Background(), CodeRequest{
		UserID:              h.user.ID,
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		Scope:               rawScope,
		Nonce:               "n-0S6",
		CodeChallenge:       S256Challenge(testVerifier),
		CodeChallengeMethod: types.CodeChallengeMethodS256,
	})
	require.NoError(t, err)
	return code
}

func (h *harness) exchange(code, verifier string) (*TokenResult, error) {
	return h.flow.ExchangeCode(context.Background(), CodeExchange{
		Code:         code,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURI:  testRedirectURI,
		CodeVerifier: verifier,
	})
}
