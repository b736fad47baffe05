package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/kanadeck/internal/spaced_repetition"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session lifetime used when none is configured
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrMissingToken    = errors.New("missing authentication token")
)

// Claims represents the JWT claims of a session
type Claims struct {
	Authenticated bool `json:"authenticated"`
	jwt.RegisteredClaims
}

// Config holds login gate configuration
type Config struct {
	Password string // Empty disables the gate
	Secret   string
	TTL      time.Duration
	Clock    spaced_repetition.Clock
}

// Gate guards the bot behind a shared password and issues HS256 session tokens
type Gate struct {
	password []byte
	secret   []byte
	ttl      time.Duration
	clock    spaced_repetition.Clock
}

// NewGate creates a login gate
func NewGate(cfg Config) (*Gate, error) {
	if cfg.Password != "" && cfg.Secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = spaced_repetition.SystemClock
	}

	return &Gate{
		password: []byte(cfg.Password),
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
	}, nil
}

// Enabled reports whether learners must log in
func (g *Gate) Enabled() bool {
	return len(g.password) > 0
}

// Login checks the password and returns a signed session token
func (g *Gate) Login(password string) (string, error) {
	if !g.Enabled() {
		return "", nil
	}
	if subtle.ConstantTimeCompare([]byte(password), g.password) != 1 {
		return "", ErrInvalidPassword
	}

	now := g.clock.Now()
	claims := Claims{
		Authenticated: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a session token. With the gate disabled every caller is let through.
func (g *Gate) Verify(tokenString string) error {
	if !g.Enabled() {
		return nil
	}

	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Authenticated {
		return ErrInvalidToken
	}
	return nil
}
