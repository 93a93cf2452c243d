package collab

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	"collabedit/internal/domain/repositories"
	collabRepo "collabedit/internal/domain/repositories/collab"
	collabSvc "collabedit/internal/domain/services/collab"
)

// snapshotService implements the SnapshotService interface
type snapshotService struct {
	projectRepo collabRepo.ProjectRepository
	stateRepo   collabRepo.StateRepository
	fileRepo    collabRepo.FileRepository
	txManager   repositories.TransactionManager
	authorizer  collabSvc.Authorizer
	live        collabSvc.ContentSource
	notifier    collabSvc.RoomNotifier
	logger      *slog.Logger
}

// NewSnapshotService creates a new snapshot service. live and notifier may be nil.
func NewSnapshotService(
	projectRepo collabRepo.ProjectRepository,
	stateRepo collabRepo.StateRepository,
	fileRepo collabRepo.FileRepository,
	txManager repositories.TransactionManager,
	authorizer collabSvc.Authorizer,
	live collabSvc.ContentSource,
	notifier collabSvc.RoomNotifier,
	logger *slog.Logger,
) collabSvc.SnapshotService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &snapshotService{
		projectRepo: projectRepo,
		stateRepo:   stateRepo,
		fileRepo:    fileRepo,
		txManager:   txManager,
		authorizer:  authorizer,
		live:        live,
		notifier:    notifier,
		logger:      logger,
	}
}

// CreateBackup copies every file of the current state into a new state that
// becomes current. The previous state moves into history untouched. Comments
// are not copied.
func (s *snapshotService) CreateBackup(ctx context.Context, projectID, actorID string) (*models.Project, error) {
	var previous string
	var previousFiles []string

	project, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireOwner(project, actorID); err != nil {
			return err
		}
		previous = project.CurrentStateID

		state, err := s.stateRepo.GetByID(ctx, previous)
		if err != nil {
			return domain.NewPersistenceError("load state", err)
		}
		previousFiles = state.FileIDs

		files, err := s.fileRepo.GetMany(ctx, state.FileIDs)
		if err != nil {
			return domain.NewPersistenceError("load files", err)
		}

		now := time.Now()
		copies := make([]string, 0, len(files))
		for _, file := range files {
			contents := file.Contents
			if s.live != nil {
				if live, ok := s.live.Lookup(file.ID); ok {
					contents = live
				}
			}

			dup := &models.File{
				Name:       file.Name,
				Type:       file.Type,
				Contents:   contents,
				CommentIDs: []string{},
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.fileRepo.Create(ctx, dup); err != nil {
				return domain.NewPersistenceError(fmt.Sprintf("duplicate file %s", file.ID), err)
			}
			copies = append(copies, dup.ID)
		}

		next := &models.State{FileIDs: copies, CreatedAt: now, UpdatedAt: now}
		if err := s.stateRepo.Create(ctx, next); err != nil {
			return domain.NewPersistenceError("create state", err)
		}

		project.SavedStates = append(project.SavedStates, previous)
		project.CurrentStateID = next.ID
		project.UpdatedAt = now
		if err := s.projectRepo.Update(ctx, project); err != nil {
			return domain.NewPersistenceError("update project", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup created",
		"project_id", projectID,
		"state_id", project.CurrentStateID,
		"saved_state_id", previous,
		"files", len(previousFiles),
		"user_id", actorID,
	)
	s.notifier.StateChanged(projectID, project.CurrentStateID, previousFiles, collabSvc.StateChangeBackup)

	return project, nil
}

// RestoreStateByID makes a saved state current. The replaced state goes into
// history so the restore can itself be undone.
func (s *snapshotService) RestoreStateByID(ctx context.Context, projectID, stateID, actorID string) (*models.Project, error) {
	if stateID == "" {
		return nil, fmt.Errorf("%w: state id is required", domain.ErrValidation)
	}

	var previous string
	var stale []string

	project, err := lockProject(ctx, s.txManager, s.projectRepo, projectID, func(ctx context.Context, project *models.Project) error {
		if err := s.authorizer.RequireOwner(project, actorID); err != nil {
			return err
		}
		if !project.HasSavedState(stateID) {
			return fmt.Errorf("%w: state %s is not in the project's history", domain.ErrInvalidState, stateID)
		}
		previous = project.CurrentStateID

		target, err := s.stateRepo.GetByID(ctx, stateID)
		if err != nil {
			return err
		}
		current, err := s.stateRepo.GetByID(ctx, previous)
		if err != nil {
			return domain.NewPersistenceError("load state", err)
		}
		stale = append(slices.Clone(current.FileIDs), target.FileIDs...)

		project.SavedStates = slices.DeleteFunc(project.SavedStates, func(id string) bool { return id == stateID })
		project.SavedStates = append(project.SavedStates, previous)
		project.CurrentStateID = stateID
		project.UpdatedAt = time.Now()
		if err := s.projectRepo.Update(ctx, project); err != nil {
			return domain.NewPersistenceError("update project", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("state restored",
		"project_id", projectID,
		"state_id", stateID,
		"saved_state_id", previous,
		"user_id", actorID,
	)
	s.notifier.StateChanged(projectID, stateID, stale, collabSvc.StateChangeRestore)

	return project, nil
}

// GetStatesList returns saved state IDs, oldest first
func (s *snapshotService) GetStatesList(ctx context.Context, projectID, actorID string) ([]string, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.RequireCollaborator(project, actorID); err != nil {
		return nil, err
	}

	states := slices.Clone(project.SavedStates)
	if states == nil {
		states = []string{}
	}
	return states, nil
}

// GetStateFiles hydrates the files of the current state or of a saved state
func (s *snapshotService) GetStateFiles(ctx context.Context, projectID, stateID, actorID string) ([]models.File, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.RequireCollaborator(project, actorID); err != nil {
		return nil, err
	}

	isCurrent := stateID == project.CurrentStateID
	if !isCurrent && !project.HasSavedState(stateID) {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("state %s not found in project", stateID)}
	}

	state, err := s.stateRepo.GetByID(ctx, stateID)
	if err != nil {
		return nil, err
	}
	files, err := s.fileRepo.GetMany(ctx, state.FileIDs)
	if err != nil {
		return nil, err
	}

	if isCurrent && s.live != nil {
		for i := range files {
			if content, ok := s.live.Lookup(files[i].ID); ok {
				files[i].Contents = content
			}
		}
	}
	return files, nil
}
