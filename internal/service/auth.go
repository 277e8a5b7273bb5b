// Package service implements business logic on top of the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/model"
	"github.com/pulseboard/pulseboard/internal/repository"
)

var (
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrPasswordTooShort is returned before any store access when the
	// password does not meet the configured minimum length.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrEmailExists is returned for duplicate registrations.
	ErrEmailExists = errors.New("email already registered")
	// ErrInvalidCredentials is the single login failure error. Unknown
	// email, wrong password and deactivated account are indistinguishable
	// to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a token does not resolve to an
	// active user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a user targets another user's account.
	ErrForbidden = errors.New("forbidden")
	// ErrUserNotFound is returned when the target account does not exist.
	ErrUserNotFound = errors.New("user not found")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// dummyPasswordHash is compared against when the email is unknown so a
// failed lookup costs roughly the same as a failed password check.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// UserStore is the persistence surface AuthService needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id int64, upd model.ProfileUpdate) (*model.User, error)
	DeactivateUser(ctx context.Context, id int64) error
}

// AuthConfig holds AuthService tunables.
type AuthConfig struct {
	PasswordMinLength int
	PasswordHashCost  int
}

// AuthService implements registration, login and account management.
type AuthService struct {
	users   UserStore
	tokens  *auth.TokenSource
	cfg     AuthConfig
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewAuthService creates an AuthService.
func NewAuthService(users UserStore, tokens *auth.TokenSource, cfg AuthConfig, logger *slog.Logger, recorder metrics.Recorder) *AuthService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AuthService{
		users:   users,
		tokens:  tokens,
		cfg:     cfg,
		logger:  logger.With("component", "auth_service"),
		metrics: recorder,
	}
}

// PasswordMinLength returns the configured minimum password length.
func (s *AuthService) PasswordMinLength() int {
	return s.cfg.PasswordMinLength
}

// TokenTTL returns the access token lifetime.
func (s *AuthService) TokenTTL() int {
	return int(s.tokens.TTL().Seconds())
}

// RegisterInput carries registration fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
}

// Session is the result of a successful register or login.
type Session struct {
	Token string
	User  *model.User
}

// Register creates an account and logs it in. The password policy is
// checked before the store is touched, so a rejected registration
// leaves no trace.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.TrimSpace(in.Email)
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < s.cfg.PasswordMinLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := auth.HashPassword(in.Password, s.cfg.PasswordHashCost)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.metrics.IncUserRegistered()
	s.logger.Info("user registered", "user_id", user.ID)

	return &Session{Token: token, User: user}, nil
}

// Login authenticates by email and password. Every failure mode maps to
// ErrInvalidCredentials so callers cannot probe which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a hash comparison to keep timing close to the
			// wrong-password path.
			auth.VerifyPassword(password, dummyPasswordHash)
			s.metrics.IncLoginFailure()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		s.metrics.IncLoginFailure()
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.metrics.IncLoginFailure()
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.metrics.IncLoginSuccess()
	s.logger.Info("user logged in", "user_id", user.ID)

	return &Session{Token: token, User: user}, nil
}

// VerifyRequest resolves a bearer token to an active user.
func (s *AuthService) VerifyRequest(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		s.metrics.IncTokenVerified("failure")
		return nil, ErrUnauthorized
	}

	id, err := claims.UserID()
	if err != nil {
		s.metrics.IncTokenVerified("failure")
		return nil, ErrUnauthorized
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		s.metrics.IncTokenVerified("failure")
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("verify request: %w", err)
	}

	if !user.IsActive {
		s.metrics.IncTokenVerified("failure")
		return nil, ErrUnauthorized
	}

	s.metrics.IncTokenVerified("success")
	return user, nil
}

// UpdateProfile updates the caller's name fields and returns the fresh row.
func (s *AuthService) UpdateProfile(ctx context.Context, caller *model.User, upd model.ProfileUpdate) (*model.User, error) {
	user, err := s.users.UpdateUserProfile(ctx, caller.ID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// Deactivate soft deletes an account. Users may only deactivate
// themselves; the operation is idempotent.
func (s *AuthService) Deactivate(ctx context.Context, caller *model.User, targetID int64) error {
	if caller.ID != targetID {
		return ErrForbidden
	}

	if err := s.users.DeactivateUser(ctx, targetID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("deactivate: %w", err)
	}

	s.metrics.IncUserDeactivated()
	s.logger.Info("user deactivated", "user_id", targetID)
	return nil
}
