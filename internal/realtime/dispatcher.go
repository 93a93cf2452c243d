package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"collabedit/internal/domain"
	"collabedit/internal/domain/repositories"
	collabRepo "collabedit/internal/domain/repositories/collab"
)

// ErrHubStopped is returned by Submit once Run has returned
var ErrHubStopped = errors.New("realtime hub stopped")

const inboxSize = 256

// Hub owns the live editing state: rooms, the document cache and the per-file
// write lanes. Client events and store completions are processed one at a
// time on the goroutine running Run; store I/O never runs on it.
type Hub struct {
	registry *Registry
	cache    DocumentCache
	projects collabRepo.ProjectRepository
	states   collabRepo.StateRepository
	files    collabRepo.FileRepository
	tx       repositories.TransactionManager
	logger   *slog.Logger

	maxContentBytes int

	inbox   chan Inbound
	resume  chan func()
	stopped chan struct{}

	// set by Run before the loop starts
	ctx context.Context

	// loop only
	lanes map[string]*lane
	tasks int
}

// NewHub creates a hub. Call Run to start processing.
func NewHub(
	registry *Registry,
	cache DocumentCache,
	projects collabRepo.ProjectRepository,
	states collabRepo.StateRepository,
	files collabRepo.FileRepository,
	txManager repositories.TransactionManager,
	maxContentBytes int,
	logger *slog.Logger,
) *Hub {
	return &Hub{
		registry:        registry,
		cache:           cache,
		projects:        projects,
		states:          states,
		files:           files,
		tx:              txManager,
		logger:          logger,
		maxContentBytes: maxContentBytes,
		inbox:           make(chan Inbound, inboxSize),
		resume:          make(chan func(), inboxSize),
		stopped:         make(chan struct{}),
		lanes:           make(map[string]*lane),
	}
}

// Run processes events until ctx is cancelled. Store calls issued by the hub
// use ctx, so writes already queued are abandoned only at shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.ctx = ctx
	defer close(h.stopped)

	h.logger.Info("realtime hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("realtime hub stopped")
			return
		case in := <-h.inbox:
			h.dispatch(in)
		case fn := <-h.resume:
			fn()
		}
	}
}

// Register makes a connection addressable before it sends anything
func (h *Hub) Register(c Conn) {
	h.registry.Add(c)
	h.logger.Debug("connection registered", "conn_id", c.ID(), "user_id", c.UserID())
}

// Submit queues a client event. It blocks while the inbox is full.
func (h *Hub) Submit(ctx context.Context, in Inbound) error {
	select {
	case h.inbox <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Disconnect releases every membership of c once the events it already
// submitted have been processed. Writes already on a lane still complete.
func (h *Hub) Disconnect(c Conn) {
	select {
	case h.inbox <- Inbound{Conn: c, closed: true}:
	case <-h.stopped:
		h.registry.Remove(c.ID())
	}
}

// post schedules fn on the loop
func (h *Hub) post(fn func()) {
	select {
	case h.resume <- fn:
	case <-h.stopped:
	}
}

// call runs fn on the loop and waits for it
func (h *Hub) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.resume <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubStopped
	}
}

// task runs fn off the loop and hands its continuation back to the loop.
// Loop only.
func (h *Hub) task(fn func(ctx context.Context) func()) {
	h.tasks++
	go func() {
		next := fn(h.ctx)
		h.post(func() {
			h.tasks--
			if next != nil {
				next()
			}
		})
	}()
}

// idle reports whether no client event, lane job or task is outstanding. Loop only.
func (h *Hub) idle() bool {
	return len(h.inbox) == 0 && len(h.lanes) == 0 && h.tasks == 0
}

func (h *Hub) dispatch(in Inbound) {
	if in.closed {
		h.registry.Remove(in.Conn.ID())
		h.logger.Debug("connection released", "conn_id", in.Conn.ID())
		return
	}
	if !h.registry.Has(in.Conn.ID()) {
		return
	}

	var err error
	switch in.Event {
	case EventJoinProject:
		var p ProjectPayload
		if err = decode(in.Data, &p); err == nil {
			err = requireField("projectId", p.ProjectID)
		}
		if err == nil {
			h.joinProjectRoom(in.Conn, p.ProjectID)
		}
	case EventLeaveProject:
		var p ProjectPayload
		if err = decode(in.Data, &p); err == nil {
			err = requireField("projectId", p.ProjectID)
		}
		if err == nil {
			h.leaveProjectRoom(in.Conn, p.ProjectID)
		}
	case EventJoinFile:
		var p FilePayload
		if err = decode(in.Data, &p); err == nil {
			err = requireField("fileId", p.FileID)
		}
		if err == nil {
			err = h.joinFile(in.Conn, p.FileID)
		}
	case EventLeaveFile:
		var p FilePayload
		if err = decode(in.Data, &p); err == nil {
			err = requireField("fileId", p.FileID)
		}
		if err == nil {
			h.leaveFile(in.Conn, p.FileID)
		}
	case EventEditFile:
		var p EditFilePayload
		if err = decode(in.Data, &p); err == nil {
			err = requireField("fileId", p.FileID)
		}
		if err == nil {
			err = h.applyEdit(in.Conn, p.FileID, p.Content)
		}
	default:
		err = fmt.Errorf("%w: unsupported event %q", domain.ErrValidation, in.Event)
	}

	if err != nil {
		h.sendError(in.Conn, "", err)
	}
}

func decode(data json.RawMessage, dest any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrValidation)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	return nil
}
