package command

import (
	"context"
	"strings"
	"sync"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-identity/oauth"
	"github.com/goliatone/go-identity/pkg/types"
)

// DirectLoginScope is granted to every password login. Direct logins always
// receive a refresh token.
const DirectLoginScope = "openid profile email offline_access"

// GrantTypePassword labels token events minted by direct logins.
const GrantTypePassword = "password"

// Authentication method references stored on sessions.
const (
	AuthMethodPassword = "pwd"
	AuthMethodOTP      = "otp"
)

const defaultLoginClientID = "identity-web"

// TokenIssuer mints the token set of a completed login.
type TokenIssuer interface {
	GenerateTokens(ctx context.Context, user *types.User, client *types.Client, rawScope, nonce string, options ...oauth.IssueOption) (*oauth.TokenResult, error)
}

// MFATokenIssuer mints step-up tokens for accounts with MFA enabled.
type MFATokenIssuer interface {
	IssueMFAToken(ctx context.Context, user *types.User) (string, error)
}

// LoginInput authenticates a user with email and password.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
	Result    *LoginResult
}

// Type implements gocommand.Message.
func (LoginInput) Type() string {
	return "command.auth.login"
}

// Validate implements gocommand.Message.
func (input LoginInput) Validate() error {
	switch {
	case strings.TrimSpace(input.Email) == "":
		return ErrEmailRequired
	case input.Password == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// LoginResult carries either a completed login or a pending MFA step.
type LoginResult struct {
	User        *types.User
	Tokens      *oauth.TokenResult
	Session     *types.Session
	RequiresMFA bool
	MFAToken    string
}

// LoginConfig holds dependencies for password logins.
type LoginConfig struct {
	Users    types.UserRepository
	Guard    types.BruteForceProtection
	Hasher   types.PasswordHasher
	Sessions types.SessionManager
	Issuer   TokenIssuer
	MFA      MFATokenIssuer
	// Clients resolves DefaultClientID. When it is nil or the client is not
	// registered a first-party client with that ID is assumed.
	Clients         types.ClientRepository
	DefaultClientID string
	Clock           types.Clock
	Logger          types.Logger
	Activity        types.ActivitySink
	Hooks           types.Hooks
}

// LoginCommand runs the password login sequence.
type LoginCommand struct {
	users  types.UserRepository
	guard  types.BruteForceProtection
	hasher types.PasswordHasher
	mfa    MFATokenIssuer
	finish *loginFinisher

	// dummy is verified when the email is unknown so both failure paths cost
	// one hash comparison.
	dummyOnce sync.Once
	dummy     string
}

// NewLoginCommand constructs the login handler.
func NewLoginCommand(cfg LoginConfig) *LoginCommand {
	return &LoginCommand{
		users:  cfg.Users,
		guard:  cfg.Guard,
		hasher: cfg.Hasher,
		mfa:    cfg.MFA,
		finish: newLoginFinisher(cfg),
	}
}

var _ gocommand.Commander[LoginInput] = (*LoginCommand)(nil)

// Execute short-circuits on the first failed check. Unknown emails and wrong
// passwords yield the same invalid_credentials error.
func (c *LoginCommand) Execute(ctx context.Context, input LoginInput) error {
	if c.users == nil {
		return types.ErrMissingUserRepository
	}
	if c.guard == nil {
		return ErrMissingBruteForceGuard
	}
	if c.hasher == nil {
		return types.ErrMissingPasswordHasher
	}
	if err := c.finish.ready(); err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}
	email := normalizeEmail(input.Email)
	attempt := types.AttemptInput{Email: email, IP: input.IP, UserAgent: input.UserAgent}

	account, err := c.guard.CheckAccount(ctx, email)
	if err != nil {
		return err
	}
	if account.IsLocked {
		c.fail(ctx, attempt, types.FailureReasonAccountLocked)
		return types.NewAuthError(types.ErrorAccountLocked, "account is temporarily locked").
			WithMetadata(map[string]any{"unlock_at": account.UnlockAt})
	}
	ip, err := c.guard.CheckIP(ctx, input.IP)
	if err != nil {
		return err
	}
	if ip.IsBlocked {
		c.fail(ctx, attempt, types.FailureReasonIPBlocked)
		return types.NewAuthError(types.ErrorIPBlocked, "too many failed attempts from this address")
	}
	if account.RequiredDelay > 0 {
		c.fail(ctx, attempt, types.FailureReasonTooManyAttempts)
		return types.NewAuthError(types.ErrorTooManyAttempts, "too many attempts, retry later").
			WithMetadata(map[string]any{"retry_after": account.RequiredDelaySeconds()})
	}

	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		c.hasher.Verify(c.dummyHash(), input.Password)
		c.fail(ctx, attempt, types.FailureReasonUserNotFound)
		return invalidCredentials()
	}
	attempt.UserID = user.ID

	at := now(c.finish.clock)
	if !user.CanLogin(at) {
		if user.Credential.IsLocked(at) {
			c.fail(ctx, attempt, types.FailureReasonAccountLocked)
			return types.NewAuthError(types.ErrorAccountLocked, "account is temporarily locked").
				WithMetadata(map[string]any{"unlock_at": user.Credential.LockedUntil})
		}
		c.fail(ctx, attempt, types.FailureReasonAccountInactive)
		return types.NewAuthError(types.ErrorAccountDisabled, "account is disabled")
	}

	if !c.hasher.Verify(user.Credential.PasswordHash, input.Password) {
		c.fail(ctx, attempt, types.FailureReasonInvalidPassword)
		return invalidCredentials()
	}

	if user.Credential.MFAState() == types.MFAStateEnabled {
		if c.mfa == nil {
			return ErrMissingMFAVerifier
		}
		token, err := c.mfa.IssueMFAToken(ctx, user)
		if err != nil {
			return types.NewServerError(err, "")
		}
		emitLoginHook(ctx, c.finish.hooks, types.LoginEvent{
			UserID:     user.ID,
			Email:      email,
			IP:         input.IP,
			Success:    false,
			Reason:     types.ErrorRequiresMFA,
			MFAPending: true,
			OccurredAt: at,
		})
		if input.Result != nil {
			*input.Result = LoginResult{User: user, RequiresMFA: true, MFAToken: token}
		}
		return nil
	}

	result, err := c.finish.complete(ctx, user, loginContext{
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Methods:   []string{AuthMethodPassword},
	})
	if err != nil {
		return err
	}
	if input.Result != nil {
		*input.Result = *result
	}
	return nil
}

func (c *LoginCommand) fail(ctx context.Context, attempt types.AttemptInput, reason string) {
	attempt.Success = false
	attempt.FailureReason = reason
	if err := c.guard.RecordAttempt(ctx, attempt); err != nil {
		c.finish.logger.Error("record login attempt failed", err, "reason", reason)
	}
	emitLoginHook(ctx, c.finish.hooks, types.LoginEvent{
		UserID:     attempt.UserID,
		Email:      attempt.Email,
		IP:         attempt.IP,
		Reason:     reason,
		OccurredAt: now(c.finish.clock),
	})
}

func (c *LoginCommand) dummyHash() string {
	c.dummyOnce.Do(func() {
		hash, err := c.hasher.Hash("go-identity-unknown-account")
		if err != nil {
			c.finish.logger.Error("dummy hash generation failed", err)
			return
		}
		c.dummy = hash
	})
	return c.dummy
}

func invalidCredentials() error {
	return types.NewAuthError(types.ErrorInvalidCredentials, "invalid email or password")
}

type loginContext struct {
	IP        string
	UserAgent string
	Methods   []string
}

// loginFinisher is the completion path shared by password and MFA logins.
type loginFinisher struct {
	guard    types.BruteForceProtection
	sessions types.SessionManager
	issuer   TokenIssuer
	clients  types.ClientRepository
	clientID string
	clock    types.Clock
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

func newLoginFinisher(cfg LoginConfig) *loginFinisher {
	clientID := strings.TrimSpace(cfg.DefaultClientID)
	if clientID == "" {
		clientID = defaultLoginClientID
	}
	return &loginFinisher{
		guard:    cfg.Guard,
		sessions: cfg.Sessions,
		issuer:   cfg.Issuer,
		clients:  cfg.Clients,
		clientID: clientID,
		clock:    safeClock(cfg.Clock),
		logger:   safeLogger(cfg.Logger),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}
}

func (f *loginFinisher) ready() error {
	switch {
	case f.guard == nil:
		return ErrMissingBruteForceGuard
	case f.sessions == nil:
		return types.ErrMissingSessionManager
	case f.issuer == nil:
		return ErrMissingTokenIssuer
	default:
		return nil
	}
}

// complete resets the failure counters, opens a session and mints tokens.
func (f *loginFinisher) complete(ctx context.Context, user *types.User, lc loginContext) (*LoginResult, error) {
	at := now(f.clock)
	if err := f.guard.RecordAttempt(ctx, types.AttemptInput{
		Email:     user.Email,
		IP:        lc.IP,
		UserAgent: lc.UserAgent,
		UserID:    user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	client, err := f.client(ctx)
	if err != nil {
		return nil, err
	}
	session, err := f.sessions.CreateSession(ctx, types.Session{
		UserID:      user.ID,
		ClientID:    client.ClientID,
		IP:          lc.IP,
		UserAgent:   lc.UserAgent,
		AuthMethods: lc.Methods,
		CreatedAt:   at,
	})
	if err != nil {
		return nil, err
	}
	tokens, err := f.issuer.GenerateTokens(ctx, user, client, DirectLoginScope, "",
		oauth.WithGrantType(GrantTypePassword),
		oauth.WithAuthTime(at),
	)
	if err != nil {
		return nil, err
	}

	emitLoginHook(ctx, f.hooks, types.LoginEvent{
		UserID:     user.ID,
		Email:      user.Email,
		IP:         lc.IP,
		Success:    true,
		OccurredAt: at,
	})
	recordActivity(ctx, f.activity, f.hooks, types.ActivityRecord{
		UserID:     user.ID,
		ActorID:    user.ID,
		Verb:       "auth.login.succeeded",
		ObjectType: "session",
		ObjectID:   session.ID.String(),
		Channel:    "auth",
		IP:         lc.IP,
		Data: map[string]any{
			"client_id": client.ClientID,
			"amr":       lc.Methods,
		},
		OccurredAt: at,
	})
	f.logger.Info("login completed", "user_id", user.ID.String(), "client_id", client.ClientID)

	return &LoginResult{User: user, Tokens: tokens, Session: session}, nil
}

func (f *loginFinisher) client(ctx context.Context) (*types.Client, error) {
	if f.clients != nil {
		client, err := f.clients.GetByClientID(ctx, f.clientID)
		if err != nil {
			return nil, err
		}
		if client != nil {
			return client, nil
		}
	}
	return &types.Client{
		ClientID:      f.clientID,
		Type:          types.ClientTypePublic,
		AllowedScopes: strings.Fields(DirectLoginScope),
		IsFirstParty:  true,
		IsActive:      true,
	}, nil
}
