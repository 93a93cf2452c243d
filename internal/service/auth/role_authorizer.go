package auth

import (
	"fmt"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	services "collabedit/internal/domain/services/collab"
)

// RoleAuthorizer implements Authorizer from the project's collaborator list.
// OWNER may do everything, EDITOR may change files, VIEWER may only read.
type RoleAuthorizer struct{}

// NewRoleAuthorizer creates a new role-based authorizer
func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

// RequireCollaborator returns the actor's role on the project
func (a *RoleAuthorizer) RequireCollaborator(project *models.Project, actorID string) (models.Role, error) {
	role, ok := project.RoleOf(actorID)
	if !ok {
		return "", &domain.ForbiddenError{
			Message: fmt.Sprintf("access denied to project %s", project.ID),
		}
	}
	return role, nil
}

// RequireEditor allows OWNER and EDITOR
func (a *RoleAuthorizer) RequireEditor(project *models.Project, actorID string) error {
	role, err := a.RequireCollaborator(project, actorID)
	if err != nil {
		return err
	}
	if !role.CanEdit() {
		return &domain.ForbiddenError{
			Message: fmt.Sprintf("role %s cannot modify files", role),
		}
	}
	return nil
}

// RequireOwner allows OWNER only
func (a *RoleAuthorizer) RequireOwner(project *models.Project, actorID string) error {
	role, err := a.RequireCollaborator(project, actorID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return &domain.ForbiddenError{
			Message: "only a project owner can do this",
		}
	}
	return nil
}

var _ services.Authorizer = (*RoleAuthorizer)(nil)
