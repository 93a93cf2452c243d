package collab

import (
	"context"

	"collabedit/internal/domain/models/collab"
)

// CreateFileRequest represents a file creation request
type CreateFileRequest struct {
	Name     string          `json:"name"`
	Type     collab.FileType `json:"file_type,omitempty"` // derived from extension when empty
	Contents string          `json:"contents"`
}

// RunResult is the captured output of a sandbox execution
type RunResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// FileService handles files in a project's current state
type FileService interface {
	// CreateFile adds a file to the current state (EDITOR or OWNER)
	CreateFile(ctx context.Context, projectID, actorID string, req *CreateFileRequest) (*collab.File, error)

	// GetFile retrieves a file that belongs to the project's current state
	GetFile(ctx context.Context, projectID, fileID, actorID string) (*collab.File, error)

	// ListFiles retrieves the files of the project's current state
	ListFiles(ctx context.Context, projectID, actorID string) ([]collab.File, error)

	// DeleteFile removes a file; the last file of a state cannot be deleted
	DeleteFile(ctx context.Context, projectID, fileID, actorID string) error

	// RunFile executes the file's live contents in the sandbox
	RunFile(ctx context.Context, projectID, fileID, actorID string) (*RunResult, error)
}

// Sandbox runs a file's contents out of process
type Sandbox interface {
	Execute(ctx context.Context, fileName, contents string) (*RunResult, error)
}

// ContentSource supplies the freshest known contents for a file (the live cache)
type ContentSource interface {
	Lookup(fileID string) (string, bool)
}
