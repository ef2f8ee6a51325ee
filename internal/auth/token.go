package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/scriptyard/scriptyard/internal/models"
)

// ErrInvalidToken is returned when a bearer token fails parsing, signature
// verification, or has expired.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTokenTTL is how long an issued bearer token remains valid.
const DefaultTokenTTL = 24 * time.Hour

// claims is the JWT payload issued at login. Subject carries the user ID.
type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// TokenIssuer issues and verifies JWT bearer tokens signed with a secret
// resolved from a TokenSecretProvider.
type TokenIssuer struct {
	secrets TokenSecretProvider
	ttl     time.Duration
}

// NewTokenIssuer creates a TokenIssuer backed by secrets. ttl of zero uses
// DefaultTokenTTL.
func NewTokenIssuer(secrets TokenSecretProvider, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secrets: secrets, ttl: ttl}
}

// Issue mints a signed bearer token for user.
func (i *TokenIssuer) Issue(ctx context.Context, user *models.User) (string, error) {
	secret, err := i.secrets.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve token secret: %w", err)
	}
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(secret.SigningKey())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token, returning the user ID and
// username/is_admin snapshot carried in its claims. It does not re-query
// the store; callers that need a fresh User should look it up by ID.
func (i *TokenIssuer) Verify(ctx context.Context, tokenString string) (userID int64, username string, isAdmin bool, err error) {
	secret, err := i.secrets.Resolve(ctx)
	if err != nil {
		return 0, "", false, fmt.Errorf("resolve token secret: %w", err)
	}
	var c claims
	_, err = jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return secret.SigningKey(), nil
	})
	if err != nil {
		return 0, "", false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, convErr := strconv.ParseInt(c.Subject, 10, 64)
	if convErr != nil {
		return 0, "", false, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return id, c.Username, c.IsAdmin, nil
}
