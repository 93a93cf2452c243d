package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	"collabedit/internal/repository/memory"
)

const waitTimeout = 2 * time.Second

type fakeConn struct {
	id     string
	userID string
	out    chan Outbound
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID, out: make(chan Outbound, 256)}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(msg Outbound) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

type fixture struct {
	hub     *Hub
	store   *memory.Store
	cache   DocumentCache
	project *models.Project
	fileID  string // f.py, contents "a"
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	files collabRepo.FileRepository
	cache DocumentCache
}

func withFiles(wrap func(collabRepo.FileRepository) collabRepo.FileRepository) fixtureOption {
	return func(c *fixtureConfig) { c.files = wrap(c.files) }
}

// newFixture starts a hub over a memory store holding one project: u-owner is
// OWNER, u-editor EDITOR, u-viewer VIEWER, and the current state has f.py = "a".
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	file := &models.File{Name: "f.py", Type: models.FileTypePython, Contents: "a"}
	if err := store.Files().Create(ctx, file); err != nil {
		t.Fatal(err)
	}
	state := &models.State{FileIDs: []string{file.ID}}
	if err := store.States().Create(ctx, state); err != nil {
		t.Fatal(err)
	}
	project := &models.Project{
		Name:      "demo",
		CreatorID: "u-owner",
		Collaborators: []models.Collaborator{
			{UserID: "u-owner", Role: models.RoleOwner},
			{UserID: "u-editor", Role: models.RoleEditor},
			{UserID: "u-viewer", Role: models.RoleViewer},
		},
		CurrentStateID: state.ID,
	}
	if err := store.Projects().Create(ctx, project); err != nil {
		t.Fatal(err)
	}

	cfg := &fixtureConfig{files: store.Files(), cache: NewMapCache()}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(NewRegistry(), cfg.cache, store.Projects(), store.States(), cfg.files, store.TxManager(), 1<<20, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	go hub.Run(runCtx)
	t.Cleanup(cancel)

	return &fixture{hub: hub, store: store, cache: cfg.cache, project: project, fileID: file.ID}
}

func (f *fixture) connect(t *testing.T, id, userID string) *fakeConn {
	t.Helper()
	c := newFakeConn(id, userID)
	f.hub.Register(c)
	return c
}

// joined connects and joins the fixture project
func (f *fixture) joined(t *testing.T, id, userID string) *fakeConn {
	t.Helper()
	c := f.connect(t, id, userID)
	f.send(t, c, EventJoinProject, ProjectPayload{ProjectID: f.project.ID})
	expect(t, c, EventProjectJoined)
	return c
}

// inFile connects, joins the project and opens fileID
func (f *fixture) inFile(t *testing.T, id, userID, fileID string) *fakeConn {
	t.Helper()
	c := f.joined(t, id, userID)
	f.send(t, c, EventJoinFile, FilePayload{FileID: fileID})
	expect(t, c, EventFileUpdate)
	return c
}

func (f *fixture) send(t *testing.T, c Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := f.hub.Submit(ctx, Inbound{Conn: c, Event: event, Data: data}); err != nil {
		t.Fatalf("Submit(%s) error = %v", event, err)
	}
}

// settle waits until every queued event, lane job and task has finished
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		var idle bool
		if err := f.hub.call(context.Background(), func() { idle = f.hub.idle() }); err != nil {
			t.Fatalf("hub stopped: %v", err)
		}
		if idle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("hub did not settle")
}

func (f *fixture) storedContents(t *testing.T, fileID string) string {
	t.Helper()
	file, err := f.store.Files().GetByID(context.Background(), fileID)
	if err != nil {
		t.Fatal(err)
	}
	return file.Contents
}

func expect(t *testing.T, c *fakeConn, event string) Outbound {
	t.Helper()
	select {
	case msg := <-c.out:
		if msg.Event != event {
			t.Fatalf("%s: got %s %+v, want %s", c.id, msg.Event, msg.Data, event)
		}
		return msg
	case <-time.After(waitTimeout):
		t.Fatalf("%s: timed out waiting for %s", c.id, event)
		return Outbound{}
	}
}

func expectNothing(t *testing.T, f *fixture, c *fakeConn) {
	t.Helper()
	f.settle(t)
	select {
	case msg := <-c.out:
		t.Fatalf("%s: unexpected %s %+v", c.id, msg.Event, msg.Data)
	default:
	}
}

// drain returns every message queued for c once the hub has settled
func drain(t *testing.T, f *fixture, c *fakeConn) []Outbound {
	t.Helper()
	f.settle(t)
	var msgs []Outbound
	for {
		select {
		case msg := <-c.out:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}
