package realtime

import (
	"context"
	"errors"
	"fmt"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	services "collabedit/internal/domain/services/collab"
)

// joinProjectRoom checks the project exists and the user collaborates on it,
// then records the project and role on the connection's session.
func (h *Hub) joinProjectRoom(c Conn, projectID string) {
	h.task(func(ctx context.Context) func() {
		project, err := h.projects.GetByID(ctx, projectID)
		if err != nil {
			return func() { h.sendError(c, "", err) }
		}
		role, ok := project.RoleOf(c.UserID())
		if !ok {
			return func() {
				h.sendError(c, "", &domain.ForbiddenError{Message: "not a collaborator on this project"})
			}
		}

		return func() {
			if !h.registry.Has(c.ID()) {
				return
			}
			h.registry.JoinProject(c.ID(), projectID, role)
			h.logger.Debug("joined project room", "conn_id", c.ID(), "project_id", projectID, "role", role)
			h.send(c, EventProjectJoined, ProjectJoinedPayload{ProjectID: projectID, Role: role})
		}
	})
}

// leaveProjectRoom refuses to act on a project that no longer exists
func (h *Hub) leaveProjectRoom(c Conn, projectID string) {
	h.task(func(ctx context.Context) func() {
		if _, err := h.projects.GetByID(ctx, projectID); err != nil {
			return func() { h.sendError(c, "", err) }
		}
		return func() {
			h.registry.LeaveProject(c.ID(), projectID)
			h.logger.Debug("left project room", "conn_id", c.ID(), "project_id", projectID)
		}
	})
}

// ToProjectRoom sends to every connection in the project room except exclude.
// It returns the number of connections the message was queued for.
func (h *Hub) ToProjectRoom(projectID, event string, payload any, exclude string) int {
	return h.broadcast(h.registry.ProjectMembers(projectID), event, payload, exclude)
}

// ToFileRoom sends to every connection viewing fileID except exclude
func (h *Hub) ToFileRoom(fileID, event string, payload any, exclude string) int {
	return h.broadcast(h.registry.FileMembers(fileID), event, payload, exclude)
}

func (h *Hub) broadcast(members []Conn, event string, payload any, exclude string) int {
	sent := 0
	for _, c := range members {
		if c.ID() == exclude {
			continue
		}
		if h.send(c, event, payload) {
			sent++
		}
	}
	return sent
}

func (h *Hub) send(c Conn, event string, payload any) bool {
	if !c.Send(Outbound{Event: event, Data: payload}) {
		h.logger.Warn("dropped message for slow connection", "conn_id", c.ID(), "event", event)
		return false
	}
	return true
}

func (h *Hub) sendError(c Conn, fileID string, err error) {
	message := err.Error()
	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		message = fmt.Sprintf("failed to save changes: %s", perr.Stage)
	}
	h.send(c, EventFileError, FileErrorPayload{Message: message, FileID: fileID})
}

// FileCreated tells the project room about a new file, the creator included
func (h *Hub) FileCreated(projectID string, file *models.File) {
	h.ToProjectRoom(projectID, EventFileCreated, FileCreatedPayload{File: file}, "")
}

// FileDeleted tells the project room a file is gone and drops its cached contents
func (h *Hub) FileDeleted(projectID, fileID string) {
	h.post(func() {
		h.enqueue(fileID, func(ctx context.Context, _ *lane, _ uint64) func() {
			h.cache.Invalidate(fileID)
			return nil
		})
		h.ToProjectRoom(projectID, EventFileDeleted, FileDeletedPayload{FileID: fileID}, "")
	})
}

// StateChanged drops cached contents of the stale files behind any edits
// already queued for them, then asks the project room to reload.
func (h *Hub) StateChanged(projectID, stateID string, staleFileIDs []string, reason services.StateChangeReason) {
	h.post(func() {
		for _, fileID := range staleFileIDs {
			h.enqueue(fileID, func(ctx context.Context, _ *lane, _ uint64) func() {
				h.cache.Invalidate(fileID)
				return nil
			})
		}
		h.logger.Info("project state changed",
			"project_id", projectID,
			"state_id", stateID,
			"reason", reason,
			"invalidated_files", len(staleFileIDs),
		)
		h.ToProjectRoom(projectID, EventStateChanged, StateChangedPayload{
			ProjectID: projectID,
			StateID:   stateID,
			Reason:    string(reason),
		}, "")
	})
}

var _ services.RoomNotifier = (*Hub)(nil)
