package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/domain"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/observability"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/repository"
	"github.com/TomokiIshimine/fullstack-app-with-claude-sub001/internal/security"
)

const (
	maxNameLength         = 120
	minPasswordLength     = 8
	maxPasswordLength     = 72 // bcrypt input limit
	initialPasswordLength = 12
)

// UserService covers account administration and self-service profile
// operations.
type UserService struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	hasher *security.PasswordHasher
	logger *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	hasher *security.PasswordHasher,
	logger *slog.Logger,
) *UserService {
	return &UserService{users: users, tokens: tokens, hasher: hasher, logger: logger}
}

func (s *UserService) List() ([]domain.User, error) {
	return s.users.List()
}

func (s *UserService) GetByID(id uint) (*domain.User, error) {
	return s.users.FindByID(id)
}

// Create registers a new account with a server-generated initial password.
// The plaintext password is returned exactly once; only its hash persists.
func (s *UserService) Create(email, name string, role domain.Role) (*domain.User, string, error) {
	email = repository.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if err := validateName(name); err != nil {
		return nil, "", err
	}
	if !role.Valid() {
		return nil, "", validationError("unknown role %q", role)
	}
	// The single admin account comes from the bootstrap seed; it can never
	// be created through account administration.
	if role == domain.RoleAdmin {
		return nil, "", validationError("admin accounts cannot be created")
	}

	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", err
	}

	password, err := security.GenerateInitialPassword(initialPasswordLength)
	if err != nil {
		return nil, "", err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", err
	}

	user := &domain.User{Email: email, Name: name, PasswordHash: hash, Role: role}
	if err := s.users.Create(user); err != nil {
		return nil, "", err
	}
	s.logger.Info("user created",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("role", string(role)))
	return user, password, nil
}

// UpdateProfile changes the caller's own email and display name.
func (s *UserService) UpdateProfile(userID uint, email, name string) (*domain.User, error) {
	email = repository.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.EmailTakenByOther(email, userID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	user.Email = email
	user.Name = name
	if err := s.users.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current password before accepting the new
// one, then revokes every live refresh token so stolen sessions die with
// the old credential.
func (s *UserService) ChangePassword(userID uint, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}

	user, err := s.users.FindByID(userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(userID, hash); err != nil {
		return err
	}

	revoked, err := s.tokens.RevokeAllByUserID(userID)
	if err != nil {
		return err
	}
	s.logger.Info("password changed, sessions revoked",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int64("revoked_count", revoked))
	observability.RecordTokensRevoked(context.Background(), revoked, "password_change")
	return nil
}

// Delete removes a member account and its sessions. The admin account is
// permanent.
func (s *UserService) Delete(id uint) error {
	user, err := s.users.FindByID(id)
	if err != nil {
		return err
	}
	if user.Role == domain.RoleAdmin {
		return ErrCannotDeleteAdmin
	}
	if _, err := s.tokens.RevokeAllByUserID(id); err != nil {
		return err
	}
	return s.users.Delete(id)
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("invalid email address")
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return validationError("name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return validationError("name must be at most %d characters", maxNameLength)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return validationError("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return validationError("password must be at most %d characters", maxPasswordLength)
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return validationError("password must contain an uppercase letter, a lowercase letter, and a digit")
	}
	return nil
}
