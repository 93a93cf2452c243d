package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// IdentityResolver resolves actors by username
type IdentityResolver interface {
	ResolveActor(ctx context.Context, username string) (*collab.User, error)
	GetUser(ctx context.Context, userID string) (*collab.User, error)

	// EnsureUser returns the user with userID, creating the profile on first sight
	EnsureUser(ctx context.Context, userID, username string) (*collab.User, error)
}

// Authorizer computes role checks from a project's collaborator list
type Authorizer interface {
	// RequireCollaborator returns the actor's role or ErrForbidden
	RequireCollaborator(project *collab.Project, actorID string) (collab.Role, error)

	// RequireEditor allows OWNER and EDITOR
	RequireEditor(project *collab.Project, actorID string) error

	// RequireOwner allows OWNER only
	RequireOwner(project *collab.Project, actorID string) error
}
