package password

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/goliatone/go-identity/pkg/types"
)

// Policy violation messages. They are returned verbatim so registration can
// surface all of them at once.
const (
	ViolationNoUpper    = "password must contain an uppercase letter"
	ViolationNoLower    = "password must contain a lowercase letter"
	ViolationNoDigit    = "password must contain a digit"
	ViolationNoSymbol   = "password must contain a symbol"
	ViolationIdentity   = "password must not contain the email or username"
	ViolationReused     = "password was used recently"
	violationTooShortFm = "password must be at least %d characters"
	violationTooLongFm  = "password must be at most %d characters"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordBytes = 72

// PolicyConfig configures the password policy.
type PolicyConfig struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
	// Hasher is used to compare the candidate against PasswordInput.History.
	Hasher types.PasswordHasher
}

// Policy implements types.PasswordPolicy.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy builds a policy with a minimum length of at least 8.
func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 8
	}
	return &Policy{cfg: cfg}
}

var _ types.PasswordPolicy = (*Policy)(nil)

// Validate returns every violation found in the candidate password.
func (p *Policy) Validate(input types.PasswordInput) []string {
	pw := input.Password
	var violations []string
	if len([]rune(pw)) < p.cfg.MinLength {
		violations = append(violations, fmt.Sprintf(violationTooShortFm, p.cfg.MinLength))
	}
	if len(pw) > maxPasswordBytes {
		violations = append(violations, fmt.Sprintf(violationTooLongFm, maxPasswordBytes))
	}

	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.cfg.RequireUpper && !upper {
		violations = append(violations, ViolationNoUpper)
	}
	if p.cfg.RequireLower && !lower {
		violations = append(violations, ViolationNoLower)
	}
	if p.cfg.RequireDigit && !digit {
		violations = append(violations, ViolationNoDigit)
	}
	if p.cfg.RequireSymbol && !symbol {
		violations = append(violations, ViolationNoSymbol)
	}
	if containsIdentity(pw, input.Email, input.Username) {
		violations = append(violations, ViolationIdentity)
	}
	if p.reused(pw, input.History) {
		violations = append(violations, ViolationReused)
	}
	return violations
}

func (p *Policy) reused(pw string, history []string) bool {
	if p.cfg.Hasher == nil || pw == "" {
		return false
	}
	for _, hash := range history {
		if p.cfg.Hasher.Verify(hash, pw) {
			return true
		}
	}
	return false
}

func containsIdentity(pw, email, username string) bool {
	lowered := strings.ToLower(pw)
	if local, _, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@"); ok && len(local) >= 3 {
		if strings.Contains(lowered, local) {
			return true
		}
	}
	username = strings.ToLower(strings.TrimSpace(username))
	return len(username) >= 3 && strings.Contains(lowered, username)
}

// AppendHistory pushes hash onto history keeping at most depth entries, most
// recent first.
func AppendHistory(history []string, hash string, depth int) []string {
	if depth <= 0 || hash == "" {
		return nil
	}
	out := make([]string, 0, depth)
	out = append(out, hash)
	for _, h := range history {
		if len(out) == depth {
			break
		}
		if h != hash {
			out = append(out, h)
		}
	}
	return out
}
