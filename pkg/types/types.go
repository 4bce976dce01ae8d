package types

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Hooks groups optional callbacks invoked after key workflows complete.
type Hooks struct {
	AfterLogin    func(context.Context, LoginEvent)
	AfterTokens   func(context.Context, TokenEvent)
	AfterActivity func(context.Context, ActivityRecord)
}

// LoginEvent is emitted once a login attempt has been fully evaluated.
type LoginEvent struct {
	UserID     uuid.UUID
	Email      string
	IP         string
	Success    bool
	Reason     string
	MFAPending bool
	OccurredAt time.Time
}

// TokenEvent is emitted whenever a token set is minted for a grant.
type TokenEvent struct {
	UserID     uuid.UUID
	ClientID   string
	GrantType  string
	Scope      string
	JTI        string
	OccurredAt time.Time
}

// ActivityRecord describes a security relevant event written to the sink.
type ActivityRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ActorID    uuid.UUID
	Verb       string
	ObjectType string
	ObjectID   string
	Channel    string
	IP         string
	Data       map[string]any
	OccurredAt time.Time
}

// ActivitySink is the minimal DI contract for emitting activity. Keep it stable
// and limited to Log so downstream modules can swap sinks without breaking
// changes.
type ActivitySink interface {
	Log(context.Context, ActivityRecord) error
}

// Clock abstracts time retrieval for deterministic testing.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts UUID creation.
type IDGenerator interface {
	UUID() uuid.UUID
}

// Logger captures basic logging hooks used by the service.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Error(msg string, err error, fields ...any)
}

// SystemClock defers to time.Now for production usage.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator produces UUIDv4 identifiers.
type UUIDGenerator struct{}

// UUID returns a randomly generated UUID.
func (UUIDGenerator) UUID() uuid.UUID { return uuid.New() }

// NopLogger discards all log lines.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, error, ...any) {}

var (
	// ErrUserIDRequired indicates a user identifier was omitted.
	ErrUserIDRequired = errors.New("go-identity: user id required")
	// ErrServiceNotReady indicates the service has not been properly configured.
	ErrServiceNotReady = errors.New("go-identity: service not ready")
	// ErrStaleRecord is returned when a conditional write loses its race: the
	// record was already consumed, revoked, or changed by another request.
	ErrStaleRecord = errors.New("go-identity: record already consumed or modified")
	// ErrMissingUserRepository occurs when no user repository was supplied.
	ErrMissingUserRepository = errors.New("go-identity: missing user repository")
	// ErrMissingClientRepository occurs when no client repository was supplied.
	ErrMissingClientRepository = errors.New("go-identity: missing client repository")
	// ErrMissingCodeRepository occurs when authorization codes lack storage.
	ErrMissingCodeRepository = errors.New("go-identity: missing authorization code repository")
	// ErrMissingRefreshTokenRepository occurs when refresh tokens lack storage.
	ErrMissingRefreshTokenRepository = errors.New("go-identity: missing refresh token repository")
	// ErrMissingBlacklistRepository occurs when revoked JTIs lack storage.
	ErrMissingBlacklistRepository = errors.New("go-identity: missing token blacklist repository")
	// ErrMissingConsentRepository occurs when consents lack storage.
	ErrMissingConsentRepository = errors.New("go-identity: missing consent repository")
	// ErrMissingPasswordResetRepository occurs when reset persistence is unavailable.
	ErrMissingPasswordResetRepository = errors.New("go-identity: missing password reset repository")
	// ErrMissingLoginAttemptRepository occurs when the brute-force guard lacks storage.
	ErrMissingLoginAttemptRepository = errors.New("go-identity: missing login attempt repository")
	// ErrMissingSessionManager occurs when login cannot persist sessions.
	ErrMissingSessionManager = errors.New("go-identity: missing session manager")
	// ErrMissingSigner occurs when token minting has no signer.
	ErrMissingSigner = errors.New("go-identity: missing token signer")
	// ErrMissingPasswordHasher occurs when password flows have no hasher.
	ErrMissingPasswordHasher = errors.New("go-identity: missing password hasher")
)
