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

// fileService implements the FileService interface. Reads prefer the live
// cache over the store since edits reach the cache first.
type fileService struct {
	projectRepo collabRepo.ProjectRepository
	stateRepo   collabRepo.StateRepository
	fileRepo    collabRepo.FileRepository
	txManager   repositories.TransactionManager
	authorizer  collabSvc.Authorizer
	live        collabSvc.ContentSource
	notifier    collabSvc.RoomNotifier
	sandbox     collabSvc.Sandbox
	logger      *slog.Logger
}

// NewFileService creates a new file service. live, notifier and sandbox may be nil.
func NewFileService(
	projectRepo collabRepo.ProjectRepository,
	stateRepo collabRepo.StateRepository,
	fileRepo collabRepo.FileRepository,
	txManager repositories.TransactionManager,
	authorizer collabSvc.Authorizer,
	live collabSvc.ContentSource,
	notifier collabSvc.RoomNotifier,
	sandbox collabSvc.Sandbox,
	logger *slog.Logger,
) collabSvc.FileService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &fileService{
		projectRepo: projectRepo,
		stateRepo:   stateRepo,
		fileRepo:    fileRepo,
		txManager:   txManager,
		authorizer:  authorizer,
		live:        live,
		notifier:    notifier,
		sandbox:     sandbox,
		logger:      logger,
	}
}

// CreateFile adds a file to the project's current state. The project stays
// locked until the file is in the state, so a backup cannot slip in between.
func (s *fileService) CreateFile(ctx context.Context, projectID, actorID string, req *collabSvc.CreateFileRequest) (*models.File, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	name := strings.TrimSpace(req.Name)
	fileType := req.Type
	if fileType == "" {
		fileType = models.FileTypeFromName(name)
	}

	now := time.Now()
	file := &models.File{
		Name:       name,
		Type:       fileType,
		Contents:   req.Contents,
		CommentIDs: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireEditor(project, actorID); err != nil {
			return err
		}
		state, err := s.stateRepo.GetByID(ctx, project.CurrentStateID)
		if err != nil {
			return err
		}

		siblings, err := s.fileRepo.GetMany(ctx, state.FileIDs)
		if err != nil {
			return err
		}
		for _, sibling := range siblings {
			if sibling.Name == name {
				return &domain.ConflictError{
					Message:      fmt.Sprintf("file '%s' already exists", name),
					ResourceType: "file",
					ResourceID:   sibling.ID,
				}
			}
		}

		if err := s.fileRepo.Create(ctx, file); err != nil {
			return err
		}
		state.FileIDs = append(state.FileIDs, file.ID)
		state.UpdatedAt = now
		return s.stateRepo.Update(ctx, state)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("file created",
		"id", file.ID,
		"name", file.Name,
		"project_id", projectID,
		"user_id", actorID,
	)
	s.notifier.FileCreated(projectID, file)

	return file, nil
}

// GetFile retrieves a file of the current state with its live contents
func (s *fileService) GetFile(ctx context.Context, projectID, fileID, actorID string) (*models.File, error) {
	_, state, err := s.loadCurrentState(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	if !state.HasFile(fileID) {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("file %s not found", fileID)}
	}

	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	s.overlayLive(file)
	return file, nil
}

// ListFiles retrieves the current state's files in state order
func (s *fileService) ListFiles(ctx context.Context, projectID, actorID string) ([]models.File, error) {
	_, state, err := s.loadCurrentState(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}

	files, err := s.fileRepo.GetMany(ctx, state.FileIDs)
	if err != nil {
		return nil, err
	}
	for i := range files {
		s.overlayLive(&files[i])
	}
	return files, nil
}

// DeleteFile removes a file from the current state. The last file cannot go.
func (s *fileService) DeleteFile(ctx context.Context, projectID, fileID, actorID string) error {
	_, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireEditor(project, actorID); err != nil {
			return err
		}
		state, err := s.stateRepo.GetByID(ctx, project.CurrentStateID)
		if err != nil {
			return err
		}
		if !state.HasFile(fileID) {
			return &domain.NotFoundError{Message: fmt.Sprintf("file %s not found", fileID)}
		}
		if len(state.FileIDs) == 1 {
			return fmt.Errorf("%w: cannot delete the last file of a project", domain.ErrValidation)
		}

		state.FileIDs = slices.DeleteFunc(state.FileIDs, func(id string) bool { return id == fileID })
		state.UpdatedAt = time.Now()
		if err := s.stateRepo.Update(ctx, state); err != nil {
			return err
		}
		return s.fileRepo.Delete(ctx, fileID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("file deleted",
		"id", fileID,
		"project_id", projectID,
		"user_id", actorID,
	)
	s.notifier.FileDeleted(projectID, fileID)

	return nil
}

// RunFile executes the file's live contents. Any collaborator may run code.
func (s *fileService) RunFile(ctx context.Context, projectID, fileID, actorID string) (*collabSvc.RunResult, error) {
	if s.sandbox == nil {
		return nil, fmt.Errorf("%w: code execution is not configured", domain.ErrValidation)
	}

	file, err := s.GetFile(ctx, projectID, fileID, actorID)
	if err != nil {
		return nil, err
	}

	result, err := s.sandbox.Execute(ctx, file.Name, file.Contents)
	if err != nil {
		return nil, err
	}

	s.logger.Info("file run",
		"id", fileID,
		"project_id", projectID,
		"user_id", actorID,
		"success", result.Success,
	)

	return result, nil
}

func (s *fileService) loadCurrentState(ctx context.Context, projectID, actorID string) (*models.Project, *models.State, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.authorizer.RequireCollaborator(project, actorID); err != nil {
		return nil, nil, err
	}
	state, err := s.stateRepo.GetByID(ctx, project.CurrentStateID)
	if err != nil {
		return nil, nil, err
	}
	return project, state, nil
}

func (s *fileService) overlayLive(file *models.File) {
	if s.live == nil {
		return
	}
	if content, ok := s.live.Lookup(file.ID); ok {
		file.Contents = content
	}
}

// validateCreateRequest validates a create file request
func (s *fileService) validateCreateRequest(req *collabSvc.CreateFileRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Name,
			validation.Required,
			validation.Length(1, config.MaxFileNameLength),
			validation.By(validateFileName),
		),
		validation.Field(&req.Type, validation.By(validateFileType)),
		validation.Field(&req.Contents, validation.By(func(value interface{}) error {
			if len(req.Contents) > config.MaxFileContentBytes {
				return fmt.Errorf("cannot exceed %d bytes", config.MaxFileContentBytes)
			}
			return nil
		})),
	)
}

type nopNotifier struct{}

func (nopNotifier) FileCreated(string, *models.File) {}
func (nopNotifier) FileDeleted(string, string)       {}
func (nopNotifier) StateChanged(string, string, []string, collabSvc.StateChangeReason) {
}
