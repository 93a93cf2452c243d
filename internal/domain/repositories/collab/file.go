package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// FileRepository defines data access operations for files
type FileRepository interface {
	Create(ctx context.Context, file *collab.File) error

	GetByID(ctx context.Context, id string) (*collab.File, error)

	// GetMany retrieves files in the order of ids; missing IDs are skipped
	GetMany(ctx context.Context, ids []string) ([]collab.File, error)

	// UpdateContents overwrites a file's contents (last writer wins)
	UpdateContents(ctx context.Context, id, contents string) error

	Delete(ctx context.Context, id string) error

	DeleteMany(ctx context.Context, ids []string) error
}
