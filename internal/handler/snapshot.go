package handler

import (
	"log/slog"
	"net/http"

	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/httputil"
)

// SnapshotHandler handles backup and restore requests
type SnapshotHandler struct {
	snapshotService collabSvc.SnapshotService
	logger          *slog.Logger
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(snapshotService collabSvc.SnapshotService, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService: snapshotService,
		logger:          logger,
	}
}

// CreateBackup snapshots the current state
// POST /api/projects/{id}/backups
func (h *SnapshotHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	project, err := h.snapshotService.CreateBackup(r.Context(), projectID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, project)
}

// GetStatesList returns the saved state IDs, oldest first
// GET /api/projects/{id}/states
func (h *SnapshotHandler) GetStatesList(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	states, err := h.snapshotService.GetStatesList(r.Context(), projectID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, states)
}

// GetStateFiles hydrates the files of a state
// GET /api/projects/{id}/states/{stateId}/files
func (h *SnapshotHandler) GetStateFiles(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}
	stateID, ok := PathParam(w, r, "stateId", "State ID")
	if !ok {
		return
	}

	files, err := h.snapshotService.GetStateFiles(r.Context(), projectID, stateID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, files)
}

// RestoreState makes a saved state current
// POST /api/projects/{id}/states/{stateId}/restore
func (h *SnapshotHandler) RestoreState(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}
	stateID, ok := PathParam(w, r, "stateId", "State ID")
	if !ok {
		return
	}

	project, err := h.snapshotService.RestoreStateByID(r.Context(), projectID, stateID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, project)
}
