package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// SnapshotService creates and restores project states
type SnapshotService interface {
	// CreateBackup duplicates the current state's files into a new current state
	// and files the previous state into history (OWNER only)
	CreateBackup(ctx context.Context, projectID, actorID string) (*collab.Project, error)

	// RestoreStateByID makes a saved state current and files the prior current
	// state into history (OWNER only)
	RestoreStateByID(ctx context.Context, projectID, stateID, actorID string) (*collab.Project, error)

	// GetStatesList returns saved state IDs, oldest first
	GetStatesList(ctx context.Context, projectID, actorID string) ([]string, error)

	// GetStateFiles hydrates the files of the current state or a saved state
	GetStateFiles(ctx context.Context, projectID, stateID, actorID string) ([]collab.File, error)
}
