package collab

import (
	"time"
)

// State is a snapshot of a project's file set. The project's current state is
// edited in place; saved states are history and are not mutated by this service.
type State struct {
	ID        string    `json:"id" db:"id"`
	FileIDs   []string  `json:"files" db:"file_ids"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasFile reports whether fileID belongs to the state
func (s *State) HasFile(fileID string) bool {
	for _, id := range s.FileIDs {
		if id == fileID {
			return true
		}
	}
	return false
}
