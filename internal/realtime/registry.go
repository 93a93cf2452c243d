package realtime

import (
	"maps"
	"slices"
	"sync"

	models "collabedit/internal/domain/models/collab"
)

// Conn is one live client connection. Send must not block; it reports false
// when the message was dropped.
type Conn interface {
	ID() string
	UserID() string
	Send(msg Outbound) bool
}

// Session is what a connection carries between events
type Session struct {
	ProjectID string
	Role      models.Role
}

type set map[string]struct{}

// Registry tracks which connections are in which project and file rooms.
// Joins are idempotent, leaving a room one is not in is a no-op and rooms are
// dropped when their last member leaves. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	conns        map[string]Conn
	sessions     map[string]Session
	projectRooms map[string]set
	fileRooms    map[string]set
	connFiles    map[string]set
}

func NewRegistry() *Registry {
	return &Registry{
		conns:        make(map[string]Conn),
		sessions:     make(map[string]Session),
		projectRooms: make(map[string]set),
		fileRooms:    make(map[string]set),
		connFiles:    make(map[string]set),
	}
}

// Add registers a connection with no memberships
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Has reports whether connID is registered
func (r *Registry) Has(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[connID]
	return ok
}

// Remove releases every membership held by connID and forgets it
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		leave(r.projectRooms, s.ProjectID, connID)
		delete(r.sessions, connID)
	}
	r.leaveAllFiles(connID)
	delete(r.conns, connID)
}

// Session returns the project session of connID, if it has joined one
func (r *Registry) Session(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// JoinProject puts connID in the project room and records the session. A
// connection is in at most one project; joining another leaves the previous
// project and its file rooms.
func (r *Registry) JoinProject(connID, projectID string, role models.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	if prev, ok := r.sessions[connID]; ok && prev.ProjectID != projectID {
		leave(r.projectRooms, prev.ProjectID, connID)
		r.leaveAllFiles(connID)
	}
	join(r.projectRooms, projectID, connID)
	r.sessions[connID] = Session{ProjectID: projectID, Role: role}
}

// LeaveProject removes connID from the project room and from every file room.
// It is a no-op unless connID is in that project.
func (r *Registry) LeaveProject(connID, projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok || s.ProjectID != projectID {
		return
	}
	leave(r.projectRooms, projectID, connID)
	delete(r.sessions, connID)
	r.leaveAllFiles(connID)
}

// JoinFile adds connID to the file room
func (r *Registry) JoinFile(connID, fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	join(r.fileRooms, fileID, connID)
	join(r.connFiles, connID, fileID)
}

// LeaveFile removes connID from the file room
func (r *Registry) LeaveFile(connID, fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	leave(r.fileRooms, fileID, connID)
	leave(r.connFiles, connID, fileID)
}

// InFile reports whether connID is in the file room
func (r *Registry) InFile(connID, fileID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fileRooms[fileID][connID]
	return ok
}

// FilesOf returns the file rooms connID is in, sorted
func (r *Registry) FilesOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.connFiles[connID]))
}

// ProjectMembers returns the connections in the project room
func (r *Registry) ProjectMembers(projectID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members(r.projectRooms[projectID])
}

// FileMembers returns the connections in the file room
func (r *Registry) FileMembers(fileID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members(r.fileRooms[fileID])
}

// RoomCounts returns the number of live project and file rooms
func (r *Registry) RoomCounts() (projects, files int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projectRooms), len(r.fileRooms)
}

func (r *Registry) members(room set) []Conn {
	conns := make([]Conn, 0, len(room))
	for id := range room {
		if c, ok := r.conns[id]; ok {
			conns = append(conns, c)
		}
	}
	return conns
}

// leaveAllFiles must be called with mu held
func (r *Registry) leaveAllFiles(connID string) {
	for fileID := range r.connFiles[connID] {
		leave(r.fileRooms, fileID, connID)
	}
	delete(r.connFiles, connID)
}

func join(rooms map[string]set, room, member string) {
	s, ok := rooms[room]
	if !ok {
		s = make(set)
		rooms[room] = s
	}
	s[member] = struct{}{}
}

func leave(rooms map[string]set, room, member string) {
	s, ok := rooms[room]
	if !ok {
		return
	}
	delete(s, member)
	if len(s) == 0 {
		delete(rooms, room)
	}
}
