package collab

import (
	"collabedit/internal/domain/models/collab"
)

// StateChangeReason explains why a project's current state was replaced
type StateChangeReason string

const (
	StateChangeBackup  StateChangeReason = "backup"
	StateChangeRestore StateChangeReason = "restore"
)

// RoomNotifier receives structural changes so live participants stay in sync.
// Implementations must not block on slow connections.
type RoomNotifier interface {
	FileCreated(projectID string, file *collab.File)
	FileDeleted(projectID, fileID string)

	// StateChanged is called after a backup or restore commits. staleFileIDs
	// are files whose cached contents may no longer match the store: the files
	// of the state that stopped being current and, on restore, of the state
	// that became current.
	StateChanged(projectID, stateID string, staleFileIDs []string, reason StateChangeReason)
}
