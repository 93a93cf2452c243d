package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// ProjectRepository defines data access operations for projects
type ProjectRepository interface {
	// Create creates a new project with its collaborators and returns it with generated ID and timestamps
	Create(ctx context.Context, project *collab.Project) error

	// GetByID retrieves a project with its collaborator list
	GetByID(ctx context.Context, id string) (*collab.Project, error)

	// GetByIDForUpdate is GetByID that also locks the project until the
	// surrounding transaction ends. Writers that read the project and write it
	// back call it inside TransactionManager.ExecTx.
	GetByIDForUpdate(ctx context.Context, id string) (*collab.Project, error)

	// ListForUser retrieves all projects the user collaborates on, ordered by updated_at DESC
	ListForUser(ctx context.Context, userID string) ([]collab.Project, error)

	// Update replaces name, current state, saved states and collaborators
	Update(ctx context.Context, project *collab.Project) error

	// Delete removes a project and its collaborator rows
	Delete(ctx context.Context, id string) error
}
