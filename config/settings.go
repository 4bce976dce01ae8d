// Package config loads go-identity settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "IDENTITY_"

// Settings captures the tunables of the authorization server core.
type Settings struct {
	Issuer        string `env:"ISSUER" envDefault:"go-identity"`
	SigningKey    string `env:"SIGNING_KEY"`
	SigningMethod string `env:"SIGNING_METHOD" envDefault:"HS256"`

	Tokens   TokenSettings
	Lockout  LockoutSettings
	MFA      MFASettings
	Password PasswordSettings

	// DefaultClientID is the first-party client used for direct logins.
	DefaultClientID string        `env:"DEFAULT_CLIENT_ID" envDefault:"identity-web"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

// TokenSettings holds server wide token lifetimes. Clients may override the
// access, ID and refresh lifetimes individually.
type TokenSettings struct {
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	IDTokenTTL           time.Duration `env:"ID_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL      time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	AuthorizationCodeTTL time.Duration `env:"AUTHORIZATION_CODE_TTL" envDefault:"10m"`
	PasswordResetTTL     time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
}

// LockoutSettings drives account lockout, IP blocking and progressive delay.
type LockoutSettings struct {
	MaxAttempts     int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutDuration time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	Window          time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`
	IPMaxAttempts   int           `env:"LOCKOUT_IP_MAX_ATTEMPTS" envDefault:"20"`
	IPWindow        time.Duration `env:"LOCKOUT_IP_WINDOW" envDefault:"15m"`
	DelayThreshold  int           `env:"LOCKOUT_DELAY_THRESHOLD" envDefault:"3"`
	DelayBase       time.Duration `env:"LOCKOUT_DELAY_BASE" envDefault:"1s"`
	DelayMax        time.Duration `env:"LOCKOUT_DELAY_MAX" envDefault:"30s"`
}

// MFASettings configures TOTP enrollment and step-up tokens.
type MFASettings struct {
	Issuer            string        `env:"MFA_ISSUER" envDefault:"go-identity"`
	Skew              *uint         `env:"MFA_SKEW" envDefault:"1"`
	RecoveryCodeCount int           `env:"MFA_RECOVERY_CODES" envDefault:"10"`
	TokenTTL          time.Duration `env:"MFA_TOKEN_TTL" envDefault:"5m"`
}

// PasswordSettings configures the password policy and hasher.
type PasswordSettings struct {
	MinLength     int  `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	RequireUpper  bool `env:"PASSWORD_REQUIRE_UPPER" envDefault:"true"`
	RequireLower  bool `env:"PASSWORD_REQUIRE_LOWER" envDefault:"true"`
	RequireDigit  bool `env:"PASSWORD_REQUIRE_DIGIT" envDefault:"true"`
	RequireSymbol bool `env:"PASSWORD_REQUIRE_SYMBOL" envDefault:"false"`
	HistoryDepth  int  `env:"PASSWORD_HISTORY_DEPTH" envDefault:"5"`
	BcryptCost    int  `env:"PASSWORD_BCRYPT_COST" envDefault:"10"`
}

// Load parses Settings from the process environment.
func Load() (Settings, error) {
	return LoadFrom(nil)
}

// LoadFrom parses Settings from the supplied map, falling back to the process
// environment when environ is nil.
func LoadFrom(environ map[string]string) (Settings, error) {
	var settings Settings
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&settings, opts); err != nil {
		return Settings{}, fmt.Errorf("config: parse env: %w", err)
	}
	return settings, nil
}

// Default returns the settings produced by an empty environment.
func Default() Settings {
	settings, err := LoadFrom(map[string]string{})
	if err != nil {
		return Settings{}
	}
	return settings
}
