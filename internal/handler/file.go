package handler

import (
	"log/slog"
	"net/http"

	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/httputil"
)

// FileHandler handles file HTTP requests for a project's current state
type FileHandler struct {
	fileService collabSvc.FileService
	logger      *slog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(fileService collabSvc.FileService, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		logger:      logger,
	}
}

// ListFiles retrieves the files of the current state
// GET /api/projects/{id}/files
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	files, err := h.fileService.ListFiles(r.Context(), projectID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, files)
}

// CreateFile adds a file to the current state
// POST /api/projects/{id}/files
// Returns 409 with the existing file's ID if the name is taken
func (h *FileHandler) CreateFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}

	var req collabSvc.CreateFileRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	file, err := h.fileService.CreateFile(r.Context(), projectID, httputil.GetUserID(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, file)
}

// GetFile retrieves a file with its live contents
// GET /api/projects/{id}/files/{fileId}
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}
	fileID, ok := PathParam(w, r, "fileId", "File ID")
	if !ok {
		return
	}

	file, err := h.fileService.GetFile(r.Context(), projectID, fileID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, file)
}

// DeleteFile removes a file; the last file of a state cannot be deleted
// DELETE /api/projects/{id}/files/{fileId}
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}
	fileID, ok := PathParam(w, r, "fileId", "File ID")
	if !ok {
		return
	}

	if err := h.fileService.DeleteFile(r.Context(), projectID, fileID, httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

// RunFile executes the file in the sandbox
// POST /api/projects/{id}/files/{fileId}/run
func (h *FileHandler) RunFile(w http.ResponseWriter, r *http.Request) {
	projectID, ok := PathParam(w, r, "id", "Project ID")
	if !ok {
		return
	}
	fileID, ok := PathParam(w, r, "fileId", "File ID")
	if !ok {
		return
	}

	result, err := h.fileService.RunFile(r.Context(), projectID, fileID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}
