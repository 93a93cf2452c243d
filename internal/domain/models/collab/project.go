package collab

import (
	"time"
)

// Role is a collaborator's permission level on a project
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// CanEdit reports whether the role may create, edit and delete files
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

type Collaborator struct {
	UserID string `json:"user_id" db:"user_id"`
	Role   Role   `json:"role" db:"role"`
}

type Project struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	CreatorID      string         `json:"creator_id" db:"creator_id"`
	Collaborators  []Collaborator `json:"collaborators"`
	CurrentStateID string         `json:"current_state" db:"current_state_id"`
	SavedStates    []string       `json:"saved_states" db:"saved_states"` // oldest first
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// RoleOf returns the role userID holds on the project
func (p *Project) RoleOf(userID string) (Role, bool) {
	for _, c := range p.Collaborators {
		if c.UserID == userID {
			return c.Role, true
		}
	}
	return "", false
}

// OwnerCount returns how many collaborators hold OWNER
func (p *Project) OwnerCount() int {
	n := 0
	for _, c := range p.Collaborators {
		if c.Role == RoleOwner {
			n++
		}
	}
	return n
}

// HasSavedState reports whether stateID is in the project's history
func (p *Project) HasSavedState(stateID string) bool {
	for _, id := range p.SavedStates {
		if id == stateID {
			return true
		}
	}
	return false
}
