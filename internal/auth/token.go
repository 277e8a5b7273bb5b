package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulseboard/pulseboard/internal/model"
)

// accessTokenType marks tokens minted for API access. Tokens carrying a
// different type claim are rejected even when the signature is valid.
const accessTokenType = "access"

var (
	// ErrTokenExpired is returned for structurally valid, correctly
	// signed tokens whose expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned when the signature does not verify.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenMalformed is returned for tokens that cannot be parsed or
	// carry unusable claims.
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims is the JWT claim set for access tokens.
// Subject holds the user id as a decimal string.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	TokenType string `json:"type"`
}

// UserID parses the subject claim into a user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrTokenMalformed, c.Subject)
	}
	return id, nil
}

// TokenSource issues and verifies HS256 access tokens.
type TokenSource struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSource creates a TokenSource with the signing secret and token
// lifetime.
func NewTokenSource(secret string, ttl time.Duration) *TokenSource {
	return &TokenSource{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL returns the configured token lifetime.
func (s *TokenSource) TTL() time.Duration {
	return s.ttl
}

// Issue mints a signed access token for the user.
func (s *TokenSource) Issue(user *model.User) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email:     user.Email,
		TokenType: accessTokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token string and returns its claims.
// The signature is checked before expiry, so a tampered token is
// reported as invalid even when it is also expired.
func (s *TokenSource) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenMalformed
		}
	}

	if claims.TokenType != accessTokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenMalformed, claims.TokenType)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	return claims, nil
}
