package realtime

import (
	"encoding/json"

	models "collabedit/internal/domain/models/collab"
)

// Client to server events
const (
	EventJoinProject  = "joinProject"
	EventLeaveProject = "leaveProject"
	EventJoinFile     = "joinFile"
	EventLeaveFile    = "leaveFile"
	EventEditFile     = "editFile"
)

// Server to client events
const (
	EventFileUpdate    = "fileUpdate"
	EventRemoteEdit    = "remoteEdit"
	EventFileCreated   = "fileCreated"
	EventFileDeleted   = "fileDeleted"
	EventFileError     = "fileError"
	EventProjectJoined = "projectJoined"
	EventStateChanged  = "stateChanged"
)

// Inbound is one decoded client message queued for the dispatcher
type Inbound struct {
	Conn  Conn
	Event string
	Data  json.RawMessage

	closed bool // set by Disconnect
}

// Outbound is the JSON envelope written to clients
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type ProjectPayload struct {
	ProjectID string `json:"projectId"`
}

type FilePayload struct {
	FileID string `json:"fileId"`
}

type EditFilePayload struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type FileUpdatePayload struct {
	FileID     string `json:"fileId"`
	NewContent string `json:"newContent"`
}

type RemoteEditPayload struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type FileCreatedPayload struct {
	File *models.File `json:"file"`
}

type FileDeletedPayload struct {
	FileID string `json:"fileId"`
}

type FileErrorPayload struct {
	Message string `json:"message"`
	FileID  string `json:"fileId,omitempty"`
}

type ProjectJoinedPayload struct {
	ProjectID string      `json:"projectId"`
	Role      models.Role `json:"role"`
}

type StateChangedPayload struct {
	ProjectID string `json:"projectId"`
	StateID   string `json:"stateId"`
	Reason    string `json:"reason"`
}
