package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// UserRepository defines identity lookups
type UserRepository interface {
	Create(ctx context.Context, user *collab.User) error

	GetByID(ctx context.Context, id string) (*collab.User, error)

	GetByUsername(ctx context.Context, username string) (*collab.User, error)
}
