package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
)

// lane serializes store I/O for one file. Jobs run in the order they were
// queued and their continuations reach the loop in that same order, so apply
// order, persist order and broadcast order agree.
type lane struct {
	tail    chan struct{} // closed when the newest queued job finishes
	pending int
	seq     uint64

	// seq of the newest edit that reached the store
	persisted atomic.Uint64
}

type laneJob func(ctx context.Context, l *lane, seq uint64) func()

// enqueue queues job on fileID's lane. Loop only.
func (h *Hub) enqueue(fileID string, job laneJob) {
	l, ok := h.lanes[fileID]
	if !ok {
		l = &lane{}
		h.lanes[fileID] = l
	}
	l.pending++
	l.seq++
	seq := l.seq
	prev := l.tail
	done := make(chan struct{})
	l.tail = done

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		next := job(h.ctx, l, seq)
		h.post(func() {
			l.pending--
			if l.pending == 0 && h.lanes[fileID] == l {
				delete(h.lanes, fileID)
			}
			if next != nil {
				next()
			}
		})
	}()
}

// applyEdit writes content to the cache and the store, then sends it to the
// other members of the file room. Membership and role are read fresh for every
// edit, inside a transaction holding the project, so a removed or downgraded
// user loses write access at once and a backup or restore cannot commit
// between the check and the write.
func (h *Hub) applyEdit(c Conn, fileID, content string) error {
	session, ok := h.registry.Session(c.ID())
	if !ok {
		return fmt.Errorf("%w: join a project before editing", domain.ErrValidation)
	}
	if h.maxContentBytes > 0 && len(content) > h.maxContentBytes {
		return fmt.Errorf("%w: content exceeds %d bytes", domain.ErrValidation, h.maxContentBytes)
	}

	originator := c.ID()
	h.enqueue(fileID, func(ctx context.Context, l *lane, seq uint64) func() {
		written := false
		err := h.tx.ExecTx(ctx, func(ctx context.Context) error {
			role, err := h.checkCurrentFile(ctx, session.ProjectID, c.UserID(), fileID, true)
			if err != nil {
				return err
			}
			if !role.CanEdit() {
				return &domain.ForbiddenError{Message: fmt.Sprintf("role %s cannot edit files", role)}
			}

			h.cache.Put(fileID, content)
			written = true

			if err := h.files.UpdateContents(ctx, fileID, content); err != nil {
				return domain.NewPersistenceError("persist file contents", err)
			}
			return nil
		})
		if err != nil {
			if !written {
				return func() { h.sendError(c, fileID, err) }
			}
			var perr *domain.PersistenceError
			if !errors.As(err, &perr) {
				err = domain.NewPersistenceError("commit file contents", err)
			}
			h.logger.Warn("edit not persisted",
				"file_id", fileID,
				"project_id", session.ProjectID,
				"conn_id", originator,
				"error", err,
			)
			return func() { h.sendError(c, fileID, err) }
		}
		l.persisted.Store(seq)

		return func() {
			// a newer edit reached the store and its broadcast follows this one
			if l.persisted.Load() > seq {
				return
			}
			h.ToFileRoom(fileID, EventRemoteEdit, RemoteEditPayload{FileID: fileID, Content: content}, originator)
		}
	})
	return nil
}

// joinFile adds c to the file room and pushes the live contents, seeding the
// cache from the store on first use.
func (h *Hub) joinFile(c Conn, fileID string) error {
	session, ok := h.registry.Session(c.ID())
	if !ok {
		return fmt.Errorf("%w: join a project before opening files", domain.ErrValidation)
	}

	h.enqueue(fileID, func(ctx context.Context, _ *lane, _ uint64) func() {
		if _, err := h.checkCurrentFile(ctx, session.ProjectID, c.UserID(), fileID, false); err != nil {
			return func() { h.sendError(c, fileID, err) }
		}

		content, ok := h.cache.Lookup(fileID)
		if !ok {
			file, err := h.files.GetByID(ctx, fileID)
			if err != nil {
				return func() { h.sendError(c, fileID, err) }
			}
			content = h.cache.Put(fileID, file.Contents)
		}

		return func() {
			// the connection may have left the project while the store was read
			if s, ok := h.registry.Session(c.ID()); !ok || s.ProjectID != session.ProjectID {
				return
			}
			h.registry.JoinFile(c.ID(), fileID)
			h.send(c, EventFileUpdate, FileUpdatePayload{FileID: fileID, NewContent: content})
		}
	})
	return nil
}

// leaveFile leaves the cache untouched
func (h *Hub) leaveFile(c Conn, fileID string) {
	h.registry.LeaveFile(c.ID(), fileID)
}

// checkCurrentFile fails unless userID still collaborates on the project and
// fileID belongs to its current state. It returns the user's role as stored
// now. With lock set the project is read for update, which only holds inside
// a transaction.
func (h *Hub) checkCurrentFile(ctx context.Context, projectID, userID, fileID string, lock bool) (models.Role, error) {
	get := h.projects.GetByID
	if lock {
		get = h.projects.GetByIDForUpdate
	}
	project, err := get(ctx, projectID)
	if err != nil {
		return "", err
	}
	role, ok := project.RoleOf(userID)
	if !ok {
		return "", &domain.ForbiddenError{Message: "not a collaborator on this project"}
	}
	state, err := h.states.GetByID(ctx, project.CurrentStateID)
	if err != nil {
		return "", err
	}
	if !state.HasFile(fileID) {
		return "", &domain.NotFoundError{Message: fmt.Sprintf("file %s is not in the project's current state", fileID)}
	}
	return role, nil
}
