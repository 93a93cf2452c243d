package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// CreateProjectRequest represents a request to create a project
type CreateProjectRequest struct {
	UserID string `json:"-"` // Set by handler from auth context
	Name   string `json:"name"`
}

// AddCollaboratorRequest adds a user to a project by username
type AddCollaboratorRequest struct {
	Username string      `json:"username"`
	Role     collab.Role `json:"role"`
}

// UpdateCollaboratorRequest changes a collaborator's role
type UpdateCollaboratorRequest struct {
	Role collab.Role `json:"role"`
}

// ProjectService defines business logic operations for projects and their collaborators
type ProjectService interface {
	// CreateProject creates a project with an empty current state; the creator becomes OWNER
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*collab.Project, error)

	// GetProject retrieves a project the actor collaborates on
	GetProject(ctx context.Context, projectID, actorID string) (*collab.Project, error)

	// ListProjects retrieves all projects the actor collaborates on
	ListProjects(ctx context.Context, actorID string) ([]collab.Project, error)

	// DeleteProject deletes a project with its states and files (OWNER only)
	DeleteProject(ctx context.Context, projectID, actorID string) error

	// AddCollaborator grants a role to the user named in req (OWNER only)
	AddCollaborator(ctx context.Context, projectID, actorID string, req *AddCollaboratorRequest) (*collab.Project, error)

	// UpdateCollaboratorRole changes a collaborator's role (OWNER only)
	UpdateCollaboratorRole(ctx context.Context, projectID, actorID, userID string, req *UpdateCollaboratorRequest) (*collab.Project, error)

	// RemoveCollaborator removes a collaborator (OWNER only; the creator cannot be removed)
	RemoveCollaborator(ctx context.Context, projectID, actorID, userID string) (*collab.Project, error)
}
