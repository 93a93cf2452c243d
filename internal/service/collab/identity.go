package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"collabedit/internal/config"
	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	collabSvc "collabedit/internal/domain/services/collab"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// identityService implements IdentityResolver on top of the user store
type identityService struct {
	userRepo collabRepo.UserRepository
	logger   *slog.Logger
}

// NewIdentityService creates a new identity resolver
func NewIdentityService(userRepo collabRepo.UserRepository, logger *slog.Logger) collabSvc.IdentityResolver {
	return &identityService{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *identityService) ResolveActor(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	return s.userRepo.GetByUsername(ctx, username)
}

func (s *identityService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *identityService) EnsureUser(ctx context.Context, userID, username string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if err := validation.Validate(username,
		validation.Required,
		validation.Length(1, config.MaxUsernameLength),
	); err != nil {
		return nil, fmt.Errorf("%w: username %v", domain.ErrValidation, err)
	}

	user = &models.User{
		ID:          userID,
		Username:    username,
		DisplayName: username,
		CreatedAt:   time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user provisioned",
		"id", user.ID,
		"username", user.Username,
	)

	return user, nil
}
