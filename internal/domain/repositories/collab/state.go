package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// StateRepository defines data access operations for project states
type StateRepository interface {
	// Create creates a new state referencing the given file IDs
	Create(ctx context.Context, state *collab.State) error

	GetByID(ctx context.Context, id string) (*collab.State, error)

	// Update replaces the file ID list and updated_at timestamp
	Update(ctx context.Context, state *collab.State) error

	DeleteMany(ctx context.Context, ids []string) error
}
