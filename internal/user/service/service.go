// Package service implements account registration and authentication.
package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskloop/taskloop/internal/auth"
	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/user/models"
	"github.com/taskloop/taskloop/internal/user/store"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Service implements user registration, login, and profile updates.
type Service struct {
	repo       store.Repository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *logger.Logger
}

// NewService creates a user service. A bcryptCost of 0 selects
// bcrypt.DefaultCost.
func NewService(repo store.Repository, tokens *auth.TokenManager, bcryptCost int, log *logger.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     log.WithFields(zap.String("component", "user-service")),
	}
}

// Register creates an account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, "", apperr.Validationf("invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, "", apperr.Validationf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Unknown, "failed to hash password", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Mint(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, token, nil
}

// Login verifies credentials and returns the user with a fresh token. All
// failures return the same Unauthorized error so callers cannot probe which
// emails are registered.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, "", apperr.Unauthorizedf("invalid credentials")
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperr.Unauthorizedf("invalid credentials")
	}

	token, err := s.tokens.Mint(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	s.logger.Debug("user logged in", zap.String("user_id", user.ID))
	return user, token, nil
}

// Get returns the user by id.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile changes the display name and avatar URL. Nil fields are
// left untouched.
func (s *Service) UpdateProfile(ctx context.Context, id string, displayName, avatarURL *string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if displayName != nil {
		user.DisplayName = strings.TrimSpace(*displayName)
	}
	if avatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*avatarURL)
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
