package handler

import (
	"log/slog"
	"net/http"

	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/httputil"
)

// UserHandler serves the caller's profile
type UserHandler struct {
	identity collabSvc.IdentityResolver
	logger   *slog.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(identity collabSvc.IdentityResolver, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		identity: identity,
		logger:   logger,
	}
}

// GetMe returns the authenticated user's profile
// GET /api/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.GetUser(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, user)
}

// HealthCheck reports that the server is up
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
