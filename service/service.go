package service

import (
	"context"
	"errors"

	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/accounts"
	"github.com/goliatone/go-identity/activity"
	"github.com/goliatone/go-identity/authcodes"
	"github.com/goliatone/go-identity/bruteforce"
	"github.com/goliatone/go-identity/clients"
	"github.com/goliatone/go-identity/command"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/consents"
	"github.com/goliatone/go-identity/loginattempts"
	"github.com/goliatone/go-identity/mfa"
	"github.com/goliatone/go-identity/oauth"
	"github.com/goliatone/go-identity/password"
	"github.com/goliatone/go-identity/passwordreset"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/query"
	"github.com/goliatone/go-identity/sessions"
	"github.com/goliatone/go-identity/signer"
	"github.com/goliatone/go-identity/tokens"
	"github.com/uptrace/bun"
)

// ErrMissingStorage is returned when neither a database nor the matching
// repository was supplied.
var ErrMissingStorage = errors.New("go-identity: bun database or repository required")

// Service is the entry point for go-identity. It wires repositories, the
// OAuth2 server and the user authentication commands.
type Service struct {
	cfg      Config
	settings config.Settings
	repos    Repositories
	signer   types.Signer
	guard    *bruteforce.Guard
	mfa      *mfa.Engine
	issuer   *oauth.TokenIssuer
	server   *oauth.Server
	commands Commands
	queries  Queries
}

// Commands exposes the user authentication command handlers.
type Commands struct {
	Login                *command.LoginCommand
	LoginMFA             *command.LoginMFACommand
	Register             *command.RegisterCommand
	ChangePassword       *command.ChangePasswordCommand
	PasswordResetRequest *command.PasswordResetRequestCommand
	PasswordResetConfirm *command.PasswordResetConfirmCommand
}

// Queries exposes read-model helpers.
type Queries struct {
	SecurityFeed    *query.SecurityFeedQuery
	AccountSecurity *query.AccountSecurityQuery
}

// Repositories groups the persistence ports. Nil entries are built on top of
// Config.DB.
type Repositories struct {
	Users         types.UserRepository
	Clients       types.ClientRepository
	Codes         types.AuthorizationCodeRepository
	RefreshTokens types.RefreshTokenRepository
	Blacklist     types.TokenBlacklistRepository
	Consents      types.ConsentRepository
	Resets        types.PasswordResetRepository
	Attempts      types.LoginAttemptRepository
	Sessions      types.SessionManager
}

// Config captures all dependencies so callers can provide their own instances
// (bun.DB, cached repositories, hooks, etc.).
type Config struct {
	Settings     config.Settings
	DB           *bun.DB
	Repositories Repositories
	// ClientCache wraps the bun client repository with go-repository-cache.
	ClientCache bool

	Signer      types.Signer
	Hasher      types.PasswordHasher
	Policy      types.PasswordPolicy
	ResetTokens types.ResetTokenGenerator
	FeatureGate featuregate.FeatureGate

	ActivitySink types.ActivitySink
	Hooks        types.Hooks
	Clock        types.Clock
	IDGenerator  types.IDGenerator
	Logger       types.Logger
}

// New constructs a Service from the supplied configuration.
func New(cfg Config) (*Service, error) {
	norm := normalizeConfig(cfg)
	s := &Service{cfg: norm, settings: norm.Settings}

	repos, err := s.buildRepositories()
	if err != nil {
		return nil, err
	}
	s.repos = repos

	if err := s.buildCore(); err != nil {
		return nil, err
	}
	s.commands = s.buildCommands()
	s.queries = s.buildQueries()
	return s, nil
}

// normalizeConfig treats a Settings value without an issuer as unset and
// falls back to the environment defaults, keeping any signing key.
func normalizeConfig(cfg Config) Config {
	if cfg.Settings.Issuer == "" {
		defaults := config.Default()
		defaults.SigningKey = cfg.Settings.SigningKey
		cfg.Settings = defaults
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	if cfg.Hasher == nil {
		cfg.Hasher = password.NewBcryptHasher(cfg.Settings.Password.BcryptCost)
	}
	if cfg.Policy == nil {
		cfg.Policy = password.NewPolicy(password.PolicyConfig{
			MinLength:     cfg.Settings.Password.MinLength,
			RequireUpper:  cfg.Settings.Password.RequireUpper,
			RequireLower:  cfg.Settings.Password.RequireLower,
			RequireDigit:  cfg.Settings.Password.RequireDigit,
			RequireSymbol: cfg.Settings.Password.RequireSymbol,
			Hasher:        cfg.Hasher,
		})
	}
	if cfg.ResetTokens == nil {
		cfg.ResetTokens = passwordreset.RandomTokenGenerator{}
	}
	return cfg
}

func (s *Service) buildRepositories() (Repositories, error) {
	repos := s.cfg.Repositories
	db := s.cfg.DB
	clock := s.cfg.Clock
	ids := s.cfg.IDGenerator

	missing := func(sentinel error) error {
		return errors.Join(ErrMissingStorage, sentinel)
	}

	if repos.Users == nil {
		if db == nil {
			return repos, missing(types.ErrMissingUserRepository)
		}
		users, err := accounts.NewRepository(accounts.RepositoryConfig{DB: db, Clock: clock, IDGen: ids})
		if err != nil {
			return repos, err
		}
		repos.Users = users
	}
	if repos.Clients == nil {
		if db == nil {
			return repos, missing(types.ErrMissingClientRepository)
		}
		repo, err := clients.NewRepository(clients.RepositoryConfig{DB: db, Clock: clock, IDGen: ids}, clients.WithCache(s.cfg.ClientCache))
		if err != nil {
			return repos, err
		}
		repos.Clients = repo
	}
	if repos.Codes == nil {
		if db == nil {
			return repos, missing(types.ErrMissingCodeRepository)
		}
		repo, err := authcodes.NewRepository(authcodes.RepositoryConfig{DB: db, Clock: clock})
		if err != nil {
			return repos, err
		}
		repos.Codes = repo
	}
	if repos.RefreshTokens == nil {
		if db == nil {
			return repos, missing(types.ErrMissingRefreshTokenRepository)
		}
		repo, err := tokens.NewRepository(tokens.RepositoryConfig{DB: db, Clock: clock})
		if err != nil {
			return repos, err
		}
		repos.RefreshTokens = repo
	}
	if repos.Blacklist == nil {
		if db == nil {
			return repos, missing(types.ErrMissingBlacklistRepository)
		}
		repo, err := tokens.NewBlacklist(tokens.BlacklistConfig{DB: db, Clock: clock})
		if err != nil {
			return repos, err
		}
		repos.Blacklist = repo
	}
	if repos.Consents == nil {
		if db == nil {
			return repos, missing(types.ErrMissingConsentRepository)
		}
		repo, err := consents.NewRepository(consents.RepositoryConfig{DB: db, Clock: clock, IDGen: ids})
		if err != nil {
			return repos, err
		}
		repos.Consents = repo
	}
	if repos.Resets == nil {
		if db == nil {
			return repos, missing(types.ErrMissingPasswordResetRepository)
		}
		repo, err := passwordreset.NewRepository(passwordreset.RepositoryConfig{DB: db, Clock: clock})
		if err != nil {
			return repos, err
		}
		repos.Resets = repo
	}
	if repos.Attempts == nil {
		if db == nil {
			return repos, missing(types.ErrMissingLoginAttemptRepository)
		}
		repo, err := loginattempts.NewRepository(loginattempts.RepositoryConfig{DB: db, Clock: clock, IDGen: ids})
		if err != nil {
			return repos, err
		}
		repos.Attempts = repo
	}
	if repos.Sessions == nil {
		if db == nil {
			return repos, missing(types.ErrMissingSessionManager)
		}
		repo, err := sessions.NewManager(sessions.Config{DB: db, Clock: clock, IDGen: ids, TTL: s.settings.SessionTTL})
		if err != nil {
			return repos, err
		}
		repos.Sessions = repo
	}
	if s.cfg.ActivitySink == nil && db != nil {
		sink, err := activity.NewRepository(activity.RepositoryConfig{DB: db, Clock: clock, IDGen: ids})
		if err != nil {
			return repos, err
		}
		s.cfg.ActivitySink = sink
	}
	return repos, nil
}

func (s *Service) buildCore() error {
	cfg := s.cfg
	settings := s.settings

	s.signer = cfg.Signer
	if s.signer == nil {
		tokenSigner, err := signer.New(signer.Config{
			Issuer: settings.Issuer,
			Method: settings.SigningMethod,
			Key:    []byte(settings.SigningKey),
			Clock:  cfg.Clock,
		})
		if err != nil {
			return err
		}
		s.signer = tokenSigner
	}

	guard, err := bruteforce.New(bruteforce.Config{
		Attempts:        s.repos.Attempts,
		Users:           s.repos.Users,
		MaxAttempts:     settings.Lockout.MaxAttempts,
		LockoutDuration: settings.Lockout.LockoutDuration,
		Window:          settings.Lockout.Window,
		IPMaxAttempts:   settings.Lockout.IPMaxAttempts,
		IPWindow:        settings.Lockout.IPWindow,
		DelayThreshold:  settings.Lockout.DelayThreshold,
		DelayBase:       settings.Lockout.DelayBase,
		DelayMax:        settings.Lockout.DelayMax,
		Clock:           cfg.Clock,
		IDGen:           cfg.IDGenerator,
		Logger:          cfg.Logger,
	})
	if err != nil {
		return err
	}
	s.guard = guard

	engine, err := mfa.New(mfa.Config{
		Users:             s.repos.Users,
		Signer:            s.signer,
		Hasher:            cfg.Hasher,
		FeatureGate:       cfg.FeatureGate,
		Issuer:            settings.MFA.Issuer,
		Skew:              settings.MFA.Skew,
		RecoveryCodeCount: settings.MFA.RecoveryCodeCount,
		TokenTTL:          settings.MFA.TokenTTL,
		Clock:             cfg.Clock,
		IDGen:             cfg.IDGenerator,
		Logger:            cfg.Logger,
		Activity:          cfg.ActivitySink,
		Hooks:             cfg.Hooks,
	})
	if err != nil {
		return err
	}
	s.mfa = engine

	issuer, err := oauth.NewTokenIssuer(oauth.IssuerConfig{
		Signer:        s.signer,
		RefreshTokens: s.repos.RefreshTokens,
		ClientHasher:  cfg.Hasher,
		Lifetimes: oauth.NewLifetimeResolver(oauth.Lifetimes{
			AccessToken:  settings.Tokens.AccessTokenTTL,
			IDToken:      settings.Tokens.IDTokenTTL,
			RefreshToken: settings.Tokens.RefreshTokenTTL,
		}),
		Clock:  cfg.Clock,
		IDGen:  cfg.IDGenerator,
		Logger: cfg.Logger,
		Hooks:  cfg.Hooks,
	})
	if err != nil {
		return err
	}
	s.issuer = issuer

	flow, err := oauth.NewAuthorizationFlow(oauth.FlowConfig{
		Clients:      s.repos.Clients,
		Codes:        s.repos.Codes,
		Users:        s.repos.Users,
		Issuer:       issuer,
		ClientHasher: cfg.Hasher,
		CodeTTL:      settings.Tokens.AuthorizationCodeTTL,
		Clock:        cfg.Clock,
		Logger:       cfg.Logger,
		Activity:     cfg.ActivitySink,
		Hooks:        cfg.Hooks,
	})
	if err != nil {
		return err
	}
	rotator, err := oauth.NewRefreshTokenRotator(oauth.RotatorConfig{
		Clients:       s.repos.Clients,
		RefreshTokens: s.repos.RefreshTokens,
		Users:         s.repos.Users,
		Issuer:        issuer,
		ClientHasher:  cfg.Hasher,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
		Activity:      cfg.ActivitySink,
		Hooks:         cfg.Hooks,
	})
	if err != nil {
		return err
	}
	tracker, err := oauth.NewConsentTracker(oauth.ConsentConfig{
		Consents: s.repos.Consents,
		Clock:    cfg.Clock,
		Activity: cfg.ActivitySink,
		Hooks:    cfg.Hooks,
	})
	if err != nil {
		return err
	}
	server, err := oauth.NewServer(oauth.ServerConfig{
		Flow:          flow,
		Rotator:       rotator,
		Issuer:        issuer,
		Consents:      tracker,
		Clients:       s.repos.Clients,
		Users:         s.repos.Users,
		RefreshTokens: s.repos.RefreshTokens,
		Blacklist:     s.repos.Blacklist,
		Signer:        s.signer,
		ClientHasher:  cfg.Hasher,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
		Activity:      cfg.ActivitySink,
		Hooks:         cfg.Hooks,
	})
	if err != nil {
		return err
	}
	s.server = server
	return nil
}

func (s *Service) buildCommands() Commands {
	cfg := s.cfg
	settings := s.settings

	login := command.LoginConfig{
		Users:           s.repos.Users,
		Guard:           s.guard,
		Hasher:          cfg.Hasher,
		Sessions:        s.repos.Sessions,
		Issuer:          s.issuer,
		MFA:             s.mfa,
		Clients:         s.repos.Clients,
		DefaultClientID: settings.DefaultClientID,
		Clock:           cfg.Clock,
		Logger:          cfg.Logger,
		Activity:        cfg.ActivitySink,
		Hooks:           cfg.Hooks,
	}
	passwords := command.PasswordConfig{
		Users:        s.repos.Users,
		Hasher:       cfg.Hasher,
		Policy:       cfg.Policy,
		Resets:       s.repos.Resets,
		HistoryDepth: settings.Password.HistoryDepth,
		Clock:        cfg.Clock,
		Logger:       cfg.Logger,
		Activity:     cfg.ActivitySink,
		Hooks:        cfg.Hooks,
	}
	terminator, _ := s.repos.Sessions.(types.SessionTerminator)

	return Commands{
		Login:    command.NewLoginCommand(login),
		LoginMFA: command.NewLoginMFACommand(command.LoginMFAConfig{LoginConfig: login, Verifier: s.mfa}),
		Register: command.NewRegisterCommand(command.RegisterConfig{
			Users:        s.repos.Users,
			Hasher:       cfg.Hasher,
			Policy:       cfg.Policy,
			FeatureGate:  cfg.FeatureGate,
			HistoryDepth: settings.Password.HistoryDepth,
			Clock:        cfg.Clock,
			IDGen:        cfg.IDGenerator,
			Logger:       cfg.Logger,
			Activity:     cfg.ActivitySink,
			Hooks:        cfg.Hooks,
		}),
		ChangePassword: command.NewChangePasswordCommand(passwords),
		PasswordResetRequest: command.NewPasswordResetRequestCommand(command.PasswordResetRequestConfig{
			Users:       s.repos.Users,
			Resets:      s.repos.Resets,
			Tokens:      cfg.ResetTokens,
			FeatureGate: cfg.FeatureGate,
			TokenTTL:    settings.Tokens.PasswordResetTTL,
			Clock:       cfg.Clock,
			Logger:      cfg.Logger,
			Activity:    cfg.ActivitySink,
			Hooks:       cfg.Hooks,
		}),
		PasswordResetConfirm: command.NewPasswordResetConfirmCommand(command.PasswordResetConfirmConfig{
			PasswordConfig: passwords,
			FeatureGate:    cfg.FeatureGate,
			RefreshTokens:  s.repos.RefreshTokens,
			Sessions:       terminator,
		}),
	}
}

func (s *Service) buildQueries() Queries {
	lister, _ := s.cfg.ActivitySink.(query.ActivityLister)
	return Queries{
		SecurityFeed:    query.NewSecurityFeedQuery(lister),
		AccountSecurity: query.NewAccountSecurityQuery(s.repos.Users, s.cfg.Clock),
	}
}

// Commands returns the command facade.
func (s *Service) Commands() Commands {
	return s.commands
}

// Queries returns the query facade.
func (s *Service) Queries() Queries {
	return s.queries
}

// OAuth returns the OAuth2 server facade.
func (s *Service) OAuth() *oauth.Server {
	if s == nil {
		return nil
	}
	return s.server
}

// MFA returns the TOTP engine used for enrollment and step-up.
func (s *Service) MFA() *mfa.Engine {
	if s == nil {
		return nil
	}
	return s.mfa
}

// Guard returns the brute force guard.
func (s *Service) Guard() *bruteforce.Guard {
	if s == nil {
		return nil
	}
	return s.guard
}

// Repositories returns the resolved persistence ports.
func (s *Service) Repositories() Repositories {
	if s == nil {
		return Repositories{}
	}
	return s.repos
}

// Signer returns the token signer shared by the issuer and the MFA engine.
func (s *Service) Signer() types.Signer {
	if s == nil {
		return nil
	}
	return s.signer
}

// ActivitySink returns the configured sink so transports can emit activity
// records for auxiliary workflows.
func (s *Service) ActivitySink() types.ActivitySink {
	if s == nil {
		return nil
	}
	return s.cfg.ActivitySink
}

// Ready reports whether the service has the required dependencies wired in.
func (s *Service) Ready() bool {
	return s != nil &&
		s.repos.Users != nil &&
		s.repos.Clients != nil &&
		s.repos.Codes != nil &&
		s.repos.RefreshTokens != nil &&
		s.repos.Blacklist != nil &&
		s.repos.Consents != nil &&
		s.repos.Resets != nil &&
		s.repos.Attempts != nil &&
		s.repos.Sessions != nil &&
		s.signer != nil &&
		s.server != nil
}

// HealthCheck surfaces missing configuration and, when a database was
// supplied, pings it.
func (s *Service) HealthCheck(ctx context.Context) error {
	if !s.Ready() {
		return types.ErrServiceNotReady
	}
	if s.cfg.DB != nil {
		return s.cfg.DB.PingContext(ctx)
	}
	return nil
}
