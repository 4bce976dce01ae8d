package command

import (
	"context"
	"strings"

	gocommand "github.com/goliatone/go-command"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

// RegisterInput creates a user with a password credential and a profile.
type RegisterInput struct {
	Email      string
	Password   string
	Username   string
	GivenName  string
	FamilyName string
	Result     *RegisterResult
}

// Type implements gocommand.Message.
func (RegisterInput) Type() string {
	return "command.auth.register"
}

// Validate implements gocommand.Message.
func (input RegisterInput) Validate() error {
	switch {
	case strings.TrimSpace(input.Email) == "":
		return ErrEmailRequired
	case input.Password == "":
		return ErrPasswordRequired
	default:
		return nil
	}
}

// RegisterResult exposes the persisted user.
type RegisterResult struct {
	User *types.User
}

// RegisterConfig holds dependencies for self-registration.
type RegisterConfig struct {
	Users        types.UserRepository
	Hasher       types.PasswordHasher
	Policy       types.PasswordPolicy
	FeatureGate  featuregate.FeatureGate
	HistoryDepth int
	Clock        types.Clock
	IDGen        types.IDGenerator
	Logger       types.Logger
	Activity     types.ActivitySink
	Hooks        types.Hooks
}

// RegisterCommand validates and persists new accounts.
type RegisterCommand struct {
	users    types.UserRepository
	hasher   types.PasswordHasher
	policy   types.PasswordPolicy
	gate     featuregate.FeatureGate
	depth    int
	clock    types.Clock
	idGen    types.IDGenerator
	logger   types.Logger
	activity types.ActivitySink
	hooks    types.Hooks
}

// NewRegisterCommand constructs the registration handler.
func NewRegisterCommand(cfg RegisterConfig) *RegisterCommand {
	idGen := cfg.IDGen
	if idGen == nil {
		idGen = types.UUIDGenerator{}
	}
	return &RegisterCommand{
		users:    cfg.Users,
		hasher:   cfg.Hasher,
		policy:   cfg.Policy,
		gate:     cfg.FeatureGate,
		depth:    cfg.HistoryDepth,
		clock:    safeClock(cfg.Clock),
		idGen:    idGen,
		logger:   safeLogger(cfg.Logger),
		activity: cfg.Activity,
		hooks:    cfg.Hooks,
	}
}

var _ gocommand.Commander[RegisterInput] = (*RegisterCommand)(nil)

// Execute rejects taken emails and usernames, reports every policy violation
// at once and stores user, credential and profile as one unit.
func (c *RegisterCommand) Execute(ctx context.Context, input RegisterInput) error {
	if c.users == nil {
		return types.ErrMissingUserRepository
	}
	if c.hasher == nil {
		return types.ErrMissingPasswordHasher
	}
	if c.policy == nil {
		return ErrMissingPasswordPolicy
	}
	if err := input.Validate(); err != nil {
		return err
	}
	enabled, err := featureEnabled(ctx, c.gate, featureSignup, uuid.Nil)
	if err != nil {
		return err
	}
	if !enabled {
		return featureDisabled(ErrSignupDisabled)
	}

	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)

	exists, err := c.users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return types.NewValidationError(types.ErrorEmailExists, "email is already registered")
	}
	if username != "" {
		exists, err = c.users.ExistsByUsername(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return types.NewValidationError(types.ErrorUsernameExists, "username is already taken")
		}
	}

	if violations := c.policy.Validate(types.PasswordInput{
		Password: input.Password,
		Email:    email,
		Username: username,
	}); len(violations) > 0 {
		return types.NewWeakPasswordError(violations)
	}
	hash, err := c.hasher.Hash(input.Password)
	if err != nil {
		return err
	}

	at := now(c.clock)
	user := types.User{
		ID:       c.idGen.UUID(),
		Email:    email,
		Username: username,
		IsActive: true,
		Credential: types.UserCredential{
			PasswordHash:      hash,
			PasswordHistory:   historyWith(nil, hash, c.depth),
			PasswordChangedAt: at,
		},
		Profile: types.UserProfile{
			GivenName:  strings.TrimSpace(input.GivenName),
			FamilyName: strings.TrimSpace(input.FamilyName),
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
	created, err := c.users.Create(ctx, user)
	if err != nil {
		return err
	}

	recordActivity(ctx, c.activity, c.hooks, types.ActivityRecord{
		UserID:     created.ID,
		ActorID:    created.ID,
		Verb:       "user.registered",
		ObjectType: "user",
		ObjectID:   created.ID.String(),
		Channel:    "auth",
		Data:       map[string]any{"email": created.Email},
		OccurredAt: at,
	})
	c.logger.Info("user registered", "user_id", created.ID.String())

	if input.Result != nil {
		*input.Result = RegisterResult{User: created}
	}
	return nil
}
