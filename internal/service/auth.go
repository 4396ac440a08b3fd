// Account registration and login.
//
// AuthService sits between the HTTP handlers and the identity store:
//
//	AuthHandler (HTTP) → AuthService (rules) → UserRepository (DB)
//	                   ↘ PasswordService (bcrypt)
//
// There are no sessions or tokens: login verifies the credentials, stamps
// last_activity and returns the public profile. Callers identify themselves
// to the other endpoints by user id.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/auth"
	"github.com/sakif/pollquest/internal/model"
	"github.com/sakif/pollquest/internal/repository"
)

// Account input limits.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 6
	MaxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
)

// AuthService handles registration and login.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
		now:       time.Now,
	}
}

// Register creates an account and returns its public profile.
//
// Errors:
//   - apperror.ErrValidation: bad username, email or password
//   - apperror.ErrConflict: email already registered
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*model.UserProfile, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	// The UNIQUE constraint is what actually guarantees one account per
	// email; this lookup only avoids hashing a password for nothing.
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperror.Duplicate("email already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	profile := user.Profile()
	return &profile, nil
}

// Login checks email and password and returns the user's profile.
//
// An unknown email and a wrong password both return
// apperror.InvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.UserProfile, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrMismatch) {
			return nil, fmt.Errorf("service/auth: checking password: %w", err)
		}
		s.logger.Debug("login rejected", slog.String("userID", user.ID))
		return nil, apperror.InvalidCredentials()
	}

	now := s.now().UTC()
	if err := s.users.TouchLastActivity(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("service/auth: updating last activity: %w", err)
	}
	user.LastActivity = now

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	profile := user.Profile()
	return &profile, nil
}

func validateRegistration(username, email, password string) error {
	n := utf8.RuneCountInString(username)
	switch {
	case n < MinUsernameLength || n > MaxUsernameLength:
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	case !validEmail(email):
		return apperror.ValidationFailed("email", "email is not a valid address")
	case len(password) < MinPasswordLength || len(password) > MaxPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d to %d bytes", MinPasswordLength, MaxPasswordLength))
	}
	return nil
}

// validEmail accepts a bare address ("a@b.c"), not a display-name form.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
