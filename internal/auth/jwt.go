// Package auth issues and validates the service tokens that callers of the
// subscriber API present, such as the Telegram bot process.
//
// Tokens are HS256 JWTs with a subject naming the calling service and a
// space-separated scope claim. There are no user sessions and no refresh
// tokens: an operator mints a token with `pipeline token` and installs it
// in the caller's environment.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Scopes understood by the API.
const (
	ScopeSubscribersRead  = "subscribers:read"
	ScopeSubscribersWrite = "subscribers:write"
)

// DefaultTokenTTL is the lifetime of a minted service token.
const DefaultTokenTTL = 90 * 24 * time.Hour

// Predefined JWT errors.
var (
	ErrInvalidToken = errors.New("invalid service token")
	ErrTokenExpired = errors.New("service token has expired")
	ErrMissingScope = errors.New("service token lacks required scope")
	ErrNoSigningKey = errors.New("no signing key configured")
	ErrEmptySubject = errors.New("service token subject must not be empty")
)

// Claims are the claims carried by a service token.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is a space-separated list of granted scopes.
	Scope string `json:"scope"`
}

// Scopes returns the granted scopes.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether scope was granted.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes(), scope)
}

// JWTConfig holds configuration for the token service.
type JWTConfig struct {
	// SigningKey is the shared HMAC secret.
	SigningKey string

	// Issuer is the issuer claim. Default: "iraq-dust".
	Issuer string

	// Audience is the audience claim. Default: "iraq-dust-api".
	Audience string

	Clock clockwork.Clock
}

// JWTService mints and validates service tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	clock      clockwork.Clock
}

// NewJWTService creates a new token service.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Issuer == "" {
		cfg.Issuer = "iraq-dust"
	}
	if cfg.Audience == "" {
		cfg.Audience = "iraq-dust-api"
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		clock:      cfg.Clock,
	}
}

// Issue mints a token for subject with the given scopes.
func (s *JWTService) Issue(subject string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if len(s.signingKey) == 0 {
		return "", time.Time{}, ErrNoSigningKey
	}
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scope: strings.Join(scopes, " "),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing service token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	if len(s.signingKey) == 0 {
		return nil, ErrNoSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrEmptySubject)
	}
	return claims, nil
}

func generateTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
