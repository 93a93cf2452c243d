package collab

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"collabedit/internal/config"
	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	"collabedit/internal/domain/repositories"
	collabRepo "collabedit/internal/domain/repositories/collab"
	collabSvc "collabedit/internal/domain/services/collab"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// projectService implements the ProjectService interface
type projectService struct {
	projectRepo collabRepo.ProjectRepository
	stateRepo   collabRepo.StateRepository
	fileRepo    collabRepo.FileRepository
	txManager   repositories.TransactionManager
	identity    collabSvc.IdentityResolver
	authorizer  collabSvc.Authorizer
	logger      *slog.Logger
}

// NewProjectService creates a new project service
func NewProjectService(
	projectRepo collabRepo.ProjectRepository,
	stateRepo collabRepo.StateRepository,
	fileRepo collabRepo.FileRepository,
	txManager repositories.TransactionManager,
	identity collabSvc.IdentityResolver,
	authorizer collabSvc.Authorizer,
	logger *slog.Logger,
) collabSvc.ProjectService {
	return &projectService{
		projectRepo: projectRepo,
		stateRepo:   stateRepo,
		fileRepo:    fileRepo,
		txManager:   txManager,
		identity:    identity,
		authorizer:  authorizer,
		logger:      logger,
	}
}

// lockProject loads the project locked for update inside a transaction and
// runs fn on it. fn writes the project back itself. Every read-modify-write
// of a project goes through here so concurrent writers cannot lose each
// other's changes.
func lockProject(
	ctx context.Context,
	txManager repositories.TransactionManager,
	projectRepo collabRepo.ProjectRepository,
	projectID string,
	fn func(ctx context.Context, project *models.Project) error,
) (*models.Project, error) {
	var project *models.Project
	err := txManager.ExecTx(ctx, func(ctx context.Context) error {
		var err error
		project, err = projectRepo.GetByIDForUpdate(ctx, projectID)
		if err != nil {
			return err
		}
		return fn(ctx, project)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CreateProject creates the project together with its empty first state
func (s *projectService) CreateProject(ctx context.Context, req *collabSvc.CreateProjectRequest) (*models.Project, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := time.Now()
	project := &models.Project{
		Name:          strings.TrimSpace(req.Name),
		CreatorID:     req.UserID,
		Collaborators: []models.Collaborator{{UserID: req.UserID, Role: models.RoleOwner}},
		SavedStates:   []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		state := &models.State{FileIDs: []string{}, CreatedAt: now, UpdatedAt: now}
		if err := s.stateRepo.Create(ctx, state); err != nil {
			return fmt.Errorf("create state: %w", err)
		}
		project.CurrentStateID = state.ID

		if err := s.projectRepo.Create(ctx, project); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		"id", project.ID,
		"name", project.Name,
		"user_id", req.UserID,
	)

	return project, nil
}

// GetProject retrieves a project the actor collaborates on
func (s *projectService) GetProject(ctx context.Context, projectID, actorID string) (*models.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.RequireCollaborator(project, actorID); err != nil {
		return nil, err
	}
	return project, nil
}

// ListProjects retrieves all projects for a user
func (s *projectService) ListProjects(ctx context.Context, actorID string) ([]models.Project, error) {
	return s.projectRepo.ListForUser(ctx, actorID)
}

// DeleteProject deletes the project, every state in its history and their files
func (s *projectService) DeleteProject(ctx context.Context, projectID, actorID string) error {
	var stateIDs []string

	_, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireOwner(project, actorID); err != nil {
			return err
		}
		stateIDs = append([]string{project.CurrentStateID}, project.SavedStates...)

		var fileIDs []string
		for _, stateID := range stateIDs {
			state, err := s.stateRepo.GetByID(ctx, stateID)
			if err != nil {
				return fmt.Errorf("load state %s: %w", stateID, err)
			}
			fileIDs = append(fileIDs, state.FileIDs...)
		}

		if err := s.projectRepo.Delete(ctx, projectID); err != nil {
			return err
		}
		if err := s.stateRepo.DeleteMany(ctx, stateIDs); err != nil {
			return fmt.Errorf("delete states: %w", err)
		}
		if err := s.fileRepo.DeleteMany(ctx, fileIDs); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("project deleted",
		"id", projectID,
		"user_id", actorID,
		"states", len(stateIDs),
	)

	return nil
}

// AddCollaborator grants a role to an existing user
func (s *projectService) AddCollaborator(ctx context.Context, projectID, actorID string, req *collabSvc.AddCollaboratorRequest) (*models.Project, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Username, validation.Required, validation.Length(1, config.MaxUsernameLength)),
		validation.Field(&req.Role, validation.Required, validation.By(validateRole)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var user *models.User
	project, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireOwner(project, actorID); err != nil {
			return err
		}
		var err error
		if user, err = s.identity.ResolveActor(ctx, req.Username); err != nil {
			return err
		}
		if _, ok := project.RoleOf(user.ID); ok {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("user '%s' is already a collaborator", user.Username),
				ResourceType: "collaborator",
				ResourceID:   user.ID,
			}
		}
		if len(project.Collaborators) >= config.MaxCollaborators {
			return fmt.Errorf("%w: project already has %d collaborators", domain.ErrValidation, config.MaxCollaborators)
		}

		project.Collaborators = append(project.Collaborators, models.Collaborator{UserID: user.ID, Role: req.Role})
		project.UpdatedAt = time.Now()
		return s.projectRepo.Update(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaborator added",
		"project_id", projectID,
		"user_id", user.ID,
		"role", req.Role,
		"actor_id", actorID,
	)

	return project, nil
}

// UpdateCollaboratorRole changes a role. The creator stays OWNER.
func (s *projectService) UpdateCollaboratorRole(ctx context.Context, projectID, actorID, userID string, req *collabSvc.UpdateCollaboratorRequest) (*models.Project, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.Role, validation.Required, validation.By(validateRole)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	project, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireOwner(project, actorID); err != nil {
			return err
		}

		i := slices.IndexFunc(project.Collaborators, func(c models.Collaborator) bool { return c.UserID == userID })
		if i < 0 {
			return &domain.NotFoundError{Message: fmt.Sprintf("user %s is not a collaborator", userID)}
		}
		if userID == project.CreatorID && req.Role != models.RoleOwner {
			return fmt.Errorf("%w: the project creator must remain an owner", domain.ErrValidation)
		}

		project.Collaborators[i].Role = req.Role
		if project.OwnerCount() == 0 {
			return fmt.Errorf("%w: a project needs at least one owner", domain.ErrValidation)
		}

		project.UpdatedAt = time.Now()
		return s.projectRepo.Update(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaborator role changed",
		"project_id", projectID,
		"user_id", userID,
		"role", req.Role,
		"actor_id", actorID,
	)

	return project, nil
}

// RemoveCollaborator lets an owner remove anyone but the creator, and lets
// any collaborator remove themselves
func (s *projectService) RemoveCollaborator(ctx context.Context, projectID, actorID, userID string) (*models.Project, error) {
	project, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		var err error
		if actorID == userID {
			_, err = s.authorizer.RequireCollaborator(project, actorID)
		} else {
			err = s.authorizer.RequireOwner(project, actorID)
		}
		if err != nil {
			return err
		}

		if userID == project.CreatorID {
			return fmt.Errorf("%w: the project creator cannot be removed", domain.ErrValidation)
		}
		i := slices.IndexFunc(project.Collaborators, func(c models.Collaborator) bool { return c.UserID == userID })
		if i < 0 {
			return &domain.NotFoundError{Message: fmt.Sprintf("user %s is not a collaborator", userID)}
		}

		project.Collaborators = slices.Delete(project.Collaborators, i, i+1)
		project.UpdatedAt = time.Now()
		return s.projectRepo.Update(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("collaborator removed",
		"project_id", projectID,
		"user_id", userID,
		"actor_id", actorID,
	)

	return project, nil
}

// validateCreateRequest validates a create project request
func (s *projectService) validateCreateRequest(req *collabSvc.CreateProjectRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Name,
			validation.Required,
			validation.Length(1, config.MaxProjectNameLength),
			validation.By(notBlank),
		),
	)
}
