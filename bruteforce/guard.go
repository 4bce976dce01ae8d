// Package bruteforce tracks login attempts per account and per address and
// derives lockout, blocking and progressive delay from them.
package bruteforce

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

// Defaults used when Config leaves a threshold unset.
const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute
	DefaultWindow          = 15 * time.Minute
	DefaultIPMaxAttempts   = 20
	DefaultIPWindow        = 15 * time.Minute
	DefaultDelayThreshold  = 3
	DefaultDelayBase       = time.Second
	DefaultDelayMax        = 30 * time.Second
)

// Config wires the guard.
type Config struct {
	Attempts types.LoginAttemptRepository
	// Users receives the per-account counters. Optional.
	Users types.UserRepository

	MaxAttempts     int
	LockoutDuration time.Duration
	Window          time.Duration
	IPMaxAttempts   int
	IPWindow        time.Duration
	DelayThreshold  int
	DelayBase       time.Duration
	DelayMax        time.Duration

	Clock  types.Clock
	IDGen  types.IDGenerator
	Logger types.Logger
}

// Guard implements types.BruteForceProtection.
type Guard struct {
	cfg      Config
	attempts types.LoginAttemptRepository
	users    types.UserRepository
	clock    types.Clock
	ids      types.IDGenerator
	logger   types.Logger
}

var _ types.BruteForceProtection = (*Guard)(nil)

// New validates cfg and fills unset thresholds with the defaults.
func New(cfg Config) (*Guard, error) {
	if cfg.Attempts == nil {
		return nil, types.ErrMissingLoginAttemptRepository
	}
	cfg = normalizeConfig(cfg)
	return &Guard{
		cfg:      cfg,
		attempts: cfg.Attempts,
		users:    cfg.Users,
		clock:    cfg.Clock,
		ids:      cfg.IDGen,
		logger:   cfg.Logger,
	}, nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = DefaultLockoutDuration
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.IPMaxAttempts <= 0 {
		cfg.IPMaxAttempts = DefaultIPMaxAttempts
	}
	if cfg.IPWindow <= 0 {
		cfg.IPWindow = DefaultIPWindow
	}
	if cfg.DelayThreshold <= 0 {
		cfg.DelayThreshold = DefaultDelayThreshold
	}
	if cfg.DelayBase <= 0 {
		cfg.DelayBase = DefaultDelayBase
	}
	if cfg.DelayMax <= 0 {
		cfg.DelayMax = DefaultDelayMax
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.IDGen == nil {
		cfg.IDGen = types.UUIDGenerator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = types.NopLogger{}
	}
	return cfg
}

// MaxAttempts returns the per-account failure threshold.
func (g *Guard) MaxAttempts() int {
	return g.cfg.MaxAttempts
}

// LockoutDuration returns how long an account stays locked.
func (g *Guard) LockoutDuration() time.Duration {
	return g.cfg.LockoutDuration
}

// CheckAccount reports lockout and progressive delay for email. Failures are
// counted since the later of the window start and the last success.
func (g *Guard) CheckAccount(ctx context.Context, email string) (types.AccountStatus, error) {
	email = normalizeEmail(email)
	if email == "" {
		return types.AccountStatus{}, nil
	}
	now := g.clock.Now()
	stats, err := g.attempts.FailureStats(ctx, types.AttemptKey{Email: email}, now.Add(-g.cfg.Window))
	if err != nil {
		return types.AccountStatus{}, err
	}
	status := types.AccountStatus{Failures: stats.Failures}

	if stats.Failures >= g.cfg.MaxAttempts && !stats.LastFailureAt.IsZero() {
		unlockAt := stats.LastFailureAt.Add(g.cfg.LockoutDuration)
		if now.Before(unlockAt) {
			status.IsLocked = true
			status.UnlockAt = unlockAt
		}
	}
	if g.users != nil {
		user, err := g.users.GetByEmail(ctx, email)
		if err != nil {
			return types.AccountStatus{}, err
		}
		if user != nil && user.Credential.IsLocked(now) {
			status.IsLocked = true
			if user.Credential.LockedUntil.After(status.UnlockAt) {
				status.UnlockAt = user.Credential.LockedUntil
			}
		}
	}
	if !status.IsLocked && !stats.LastFailureAt.IsZero() {
		delay := g.Delay(stats.Failures)
		if remaining := stats.LastFailureAt.Add(delay).Sub(now); remaining > 0 {
			status.RequiredDelay = remaining
		}
	}
	return status, nil
}

// CheckIP reports whether ip exceeded the failure threshold in its window.
func (g *Guard) CheckIP(ctx context.Context, ip string) (types.IPStatus, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return types.IPStatus{}, nil
	}
	stats, err := g.attempts.FailureStats(ctx, types.AttemptKey{IP: ip}, g.clock.Now().Add(-g.cfg.IPWindow))
	if err != nil {
		return types.IPStatus{}, err
	}
	return types.IPStatus{
		IsBlocked: stats.Failures >= g.cfg.IPMaxAttempts,
		Failures:  stats.Failures,
	}, nil
}

// RecordAttempt stores the attempt and keeps the account counters of a known
// user in step: wrong passwords and codes increment them, successes reset
// them.
func (g *Guard) RecordAttempt(ctx context.Context, input types.AttemptInput) error {
	now := g.clock.Now()
	attempt := types.LoginAttempt{
		ID:            g.ids.UUID(),
		Email:         normalizeEmail(input.Email),
		IP:            strings.TrimSpace(input.IP),
		UserAgent:     input.UserAgent,
		Success:       input.Success,
		FailureReason: input.FailureReason,
		OccurredAt:    now,
	}
	if input.Success {
		attempt.FailureReason = ""
	}
	if err := g.attempts.RecordAttempt(ctx, attempt); err != nil {
		return err
	}
	if g.users == nil || input.UserID == uuid.Nil {
		return nil
	}
	switch {
	case input.Success:
		return g.users.ResetFailedLogins(ctx, input.UserID, now)
	case countsAgainstAccount(input.FailureReason):
		state, err := g.users.RecordFailedLogin(ctx, input.UserID, g.cfg.MaxAttempts, g.cfg.LockoutDuration, now)
		if err != nil {
			return err
		}
		if !state.LockedUntil.IsZero() {
			g.logger.Info("account locked after repeated failures",
				"user_id", input.UserID.String(),
				"failed_attempts", state.FailedAttempts,
				"locked_until", state.LockedUntil,
			)
		}
	}
	return nil
}

// Delay is the progressive delay owed after failures:
// base * 2^(failures-threshold), capped at the configured maximum.
func (g *Guard) Delay(failures int) time.Duration {
	if failures < g.cfg.DelayThreshold {
		return 0
	}
	delay := g.cfg.DelayBase
	for i := g.cfg.DelayThreshold; i < failures; i++ {
		delay *= 2
		if delay >= g.cfg.DelayMax {
			return g.cfg.DelayMax
		}
	}
	if delay > g.cfg.DelayMax {
		return g.cfg.DelayMax
	}
	return delay
}

func countsAgainstAccount(reason string) bool {
	switch reason {
	case types.FailureReasonInvalidPassword, types.FailureReasonInvalidMFA:
		return true
	default:
		return false
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
