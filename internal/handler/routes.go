package handler

import "net/http"

// Handlers groups every HTTP handler the server exposes
type Handlers struct {
	Projects  *ProjectHandler
	Files     *FileHandler
	Snapshots *SnapshotHandler
	Users     *UserHandler
	WS        *WSHandler
}

// RegisterRoutes wires the API onto mux (Go 1.22+ method patterns)
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /health", HealthCheck)

	mux.HandleFunc("GET /api/users/me", h.Users.GetMe)

	// Projects and collaborators
	mux.HandleFunc("GET /api/projects", h.Projects.ListProjects)
	mux.HandleFunc("POST /api/projects", h.Projects.CreateProject)
	mux.HandleFunc("GET /api/projects/{id}", h.Projects.GetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", h.Projects.DeleteProject)
	mux.HandleFunc("POST /api/projects/{id}/collaborators", h.Projects.AddCollaborator)
	mux.HandleFunc("PATCH /api/projects/{id}/collaborators/{userId}", h.Projects.UpdateCollaboratorRole)
	mux.HandleFunc("DELETE /api/projects/{id}/collaborators/{userId}", h.Projects.RemoveCollaborator)

	// Files of the current state
	mux.HandleFunc("GET /api/projects/{id}/files", h.Files.ListFiles)
	mux.HandleFunc("POST /api/projects/{id}/files", h.Files.CreateFile)
	mux.HandleFunc("GET /api/projects/{id}/files/{fileId}", h.Files.GetFile)
	mux.HandleFunc("DELETE /api/projects/{id}/files/{fileId}", h.Files.DeleteFile)
	mux.HandleFunc("POST /api/projects/{id}/files/{fileId}/run", h.Files.RunFile)

	// Snapshots
	mux.HandleFunc("POST /api/projects/{id}/backups", h.Snapshots.CreateBackup)
	mux.HandleFunc("GET /api/projects/{id}/states", h.Snapshots.GetStatesList)
	mux.HandleFunc("GET /api/projects/{id}/states/{stateId}/files", h.Snapshots.GetStateFiles)
	mux.HandleFunc("POST /api/projects/{id}/states/{stateId}/restore", h.Snapshots.RestoreState)

	// Live editing
	mux.HandleFunc("GET /ws", h.WS.ServeWS)
}
