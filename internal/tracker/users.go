package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/habittrack/internal/constants"
	"github.com/julianstephens/habittrack/internal/logger"
	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
)

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a bcrypt password hash. A taken email fails
// with storage.ErrDuplicate.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	email := normalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return models.User{}, fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         constants.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return models.User{}, err
	}

	logger.Info("User registered", "user", user.ID)
	return user, nil
}

// Login checks the credentials. No session is issued.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.store.GetUser(ctx, id)
}

// UserPatch carries a profile update. Nil fields are kept.
type UserPatch struct {
	Username *string
	Email    *string
}

// UpdateUser changes the username and email. An email held by another user
// fails with storage.ErrDuplicate.
func (s *Service) UpdateUser(ctx context.Context, id string, patch UserPatch) (models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if username == "" {
			return models.User{}, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
		}
		user.Username = username
	}
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email == "" {
			return models.User{}, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
		}
		user.Email = email
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return models.User{}, err
	}
	logger.Info("User updated", "user", user.ID)
	return user, nil
}

// ChangePassword replaces the password hash after checking the current
// password.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}
	logger.Info("Password changed", "user", user.ID)
	return nil
}
