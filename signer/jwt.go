// Package signer mints and verifies the JWTs handed out by the authorization
// server.
package signer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity/pkg/types"
)

var (
	// ErrSigningKeyRequired is returned when no key material was configured.
	ErrSigningKeyRequired = errors.New("signer: signing key required")
	// ErrUnsupportedMethod is returned for algorithms other than HS* and RS*.
	ErrUnsupportedMethod = errors.New("signer: unsupported signing method")
	// ErrInvalidToken wraps every decode failure.
	ErrInvalidToken = errors.New("signer: invalid token")
)

// Config configures the JWT signer.
type Config struct {
	Issuer string
	// Method is a JWA name such as HS256 or RS256.
	Method string
	// Key is the HMAC secret for HS* methods.
	Key []byte
	// PrivateKeyPEM holds the RSA private key for RS* methods.
	PrivateKeyPEM []byte
	Clock         types.Clock
}

// JWTSigner implements types.Signer with golang-jwt.
type JWTSigner struct {
	issuer    string
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	clock     types.Clock
}

type claims struct {
	jwt.RegisteredClaims
	Use      string   `json:"token_use"`
	ClientID string   `json:"client_id,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// New builds a signer from cfg.
func New(cfg Config) (*JWTSigner, error) {
	name := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if name == "" {
		name = jwt.SigningMethodHS256.Alg()
	}
	method := jwt.GetSigningMethod(name)
	if method == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, name)
	}
	s := &JWTSigner{
		issuer: cfg.Issuer,
		method: method,
		clock:  cfg.Clock,
	}
	if s.clock == nil {
		s.clock = types.SystemClock{}
	}
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(cfg.Key) == 0 {
			return nil, ErrSigningKeyRequired
		}
		s.signKey = cfg.Key
		s.verifyKey = cfg.Key
	case *jwt.SigningMethodRSA:
		if len(cfg.PrivateKeyPEM) == 0 {
			return nil, ErrSigningKeyRequired
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("signer: parse rsa key: %w", err)
		}
		s.signKey = key
		s.verifyKey = &key.PublicKey
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, name)
	}
	return s, nil
}

var _ types.Signer = (*JWTSigner)(nil)

// Issuer returns the iss claim stamped on every token.
func (s *JWTSigner) Issuer() string {
	return s.issuer
}

// CreateAccessToken signs an access token.
func (s *JWTSigner) CreateAccessToken(_ context.Context, input types.AccessTokenClaims) (string, error) {
	c := claims{
		RegisteredClaims: s.registered(input.Subject, input.JTI, input.IssuedAt, input.ExpiresAt, input.ClientID),
		Use:              string(types.TokenUseAccess),
		ClientID:         input.ClientID,
		Scope:            input.Scope,
		Roles:            input.Roles,
	}
	return jwt.NewWithClaims(s.method, c).SignedString(s.signKey)
}

// CreateIDToken signs an OIDC ID token. User-info claims are merged in but
// never override the registered claims.
func (s *JWTSigner) CreateIDToken(_ context.Context, input types.IDTokenClaims) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range input.Claims {
		mc[k] = v
	}
	mc["iss"] = s.issuer
	mc["sub"] = input.Subject
	mc["aud"] = input.ClientID
	mc["iat"] = jwt.NewNumericDate(s.issuedAt(input.IssuedAt))
	mc["exp"] = jwt.NewNumericDate(input.ExpiresAt)
	mc["token_use"] = string(types.TokenUseID)
	if input.JTI != "" {
		mc["jti"] = input.JTI
	}
	if input.Nonce != "" {
		mc["nonce"] = input.Nonce
	}
	if !input.AuthTime.IsZero() {
		mc["auth_time"] = input.AuthTime.Unix()
	}
	return jwt.NewWithClaims(s.method, mc).SignedString(s.signKey)
}

// CreateMFAToken signs the short lived step-up token.
func (s *JWTSigner) CreateMFAToken(_ context.Context, input types.MFATokenClaims) (string, error) {
	c := claims{
		RegisteredClaims: s.registered(input.Subject, input.JTI, input.IssuedAt, input.ExpiresAt, ""),
		Use:              string(types.TokenUseMFA),
	}
	return jwt.NewWithClaims(s.method, c).SignedString(s.signKey)
}

// DecodeToken verifies signature, issuer and time claims.
func (s *JWTSigner) DecodeToken(_ context.Context, token string) (*types.DecodedToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	var parsed claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return s.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &types.DecodedToken{
		Use:       types.TokenUse(parsed.Use),
		Subject:   parsed.Subject,
		ClientID:  parsed.ClientID,
		Scope:     parsed.Scope,
		JTI:       parsed.ID,
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		Roles:     parsed.Roles,
		IssuedAt:  numericTime(parsed.IssuedAt),
		NotBefore: numericTime(parsed.NotBefore),
		ExpiresAt: numericTime(parsed.ExpiresAt),
	}, nil
}

func (s *JWTSigner) registered(subject, jti string, issuedAt, expiresAt time.Time, audience string) jwt.RegisteredClaims {
	iat := s.issuedAt(issuedAt)
	rc := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	if audience != "" {
		rc.Audience = jwt.ClaimStrings{audience}
	}
	return rc
}

func (s *JWTSigner) issuedAt(value time.Time) time.Time {
	if value.IsZero() {
		return s.clock.Now()
	}
	return value
}

func numericTime(value *jwt.NumericDate) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.Time.UTC()
}
