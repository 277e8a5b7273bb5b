package auth

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulseboard/pulseboard/internal/model"
)

func testUser() *model.User {
	return &model.User{
		ID:       42,
		Email:    "holder@example.com",
		IsActive: true,
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	source := NewTokenSource("top-secret", time.Hour)
	user := testUser()

	token, err := source.Issue(user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := source.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != strconv.FormatInt(user.ID, 10) {
		t.Errorf("subject = %q, want %q", claims.Subject, "42")
	}
	if claims.Email != user.Email {
		t.Errorf("email claim = %q, want %q", claims.Email, user.Email)
	}
	if claims.TokenType != "access" {
		t.Errorf("type claim = %q, want access", claims.TokenType)
	}

	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if id != user.ID {
		t.Errorf("UserID() = %d, want %d", id, user.ID)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	source := NewTokenSource("top-secret", -time.Minute)

	token, err := source.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := source.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewTokenSource("secret-one", time.Hour)
	verifier := NewTokenSource("secret-two", time.Hour)

	token, err := issuer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	source := NewTokenSource("top-secret", time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := source.Verify(token); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q) error = %v, want ErrTokenMalformed", token, err)
		}
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	source := NewTokenSource("top-secret", time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:     "holder@example.com",
		TokenType: "refresh",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("top-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := source.Verify(token); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("Verify() error = %v, want ErrTokenMalformed", err)
	}
}

func TestVerifyRejectsNonNumericSubject(t *testing.T) {
	source := NewTokenSource("top-secret", time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:     "holder@example.com",
		TokenType: "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("top-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := source.Verify(token); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("Verify() error = %v, want ErrTokenMalformed", err)
	}
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	source := NewTokenSource("top-secret", time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenType: "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := source.Verify(token); err == nil {
		t.Error("Verify() accepted an alg=none token")
	}
}
