package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	services "collabedit/internal/domain/services/collab"
	"collabedit/internal/service/auth"
	svc "collabedit/internal/service/collab"
)

func TestJoinFile_SeedsCacheFromStore(t *testing.T) {
	f := newFixture(t)
	c := f.joined(t, "c1", "u-viewer")

	if _, ok := f.cache.Lookup(f.fileID); ok {
		t.Fatal("cache populated before any join")
	}

	f.send(t, c, EventJoinFile, FilePayload{FileID: f.fileID})
	msg := expect(t, c, EventFileUpdate)

	got := msg.Data.(FileUpdatePayload)
	if got.FileID != f.fileID || got.NewContent != "a" {
		t.Errorf("fileUpdate = %+v, want stored contents a", got)
	}
	if f.cache.Get(f.fileID) != "a" {
		t.Errorf("cache = %q, want seeded a", f.cache.Get(f.fileID))
	}
}

func TestJoinFile_TwiceKeepsOneMembership(t *testing.T) {
	f := newFixture(t)
	c := f.inFile(t, "c1", "u-editor", f.fileID)

	f.send(t, c, EventJoinFile, FilePayload{FileID: f.fileID})
	expect(t, c, EventFileUpdate)
	f.settle(t)

	if n := len(f.hub.registry.FileMembers(f.fileID)); n != 1 {
		t.Errorf("file room has %d members, want 1", n)
	}

	f.send(t, c, EventLeaveFile, FilePayload{FileID: "not-joined"})
	expectNothing(t, f, c)
}

func TestJoinFile_RequiresProject(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t, "c1", "u-owner")

	f.send(t, c, EventJoinFile, FilePayload{FileID: f.fileID})
	expect(t, c, EventFileError)
}

func TestApplyEdit_OriginatorGetsNoEcho(t *testing.T) {
	f := newFixture(t)
	x := f.inFile(t, "x", "u-owner", f.fileID)
	y := f.inFile(t, "y", "u-editor", f.fileID)
	outside := f.joined(t, "z", "u-viewer")

	f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "ab"})

	got := expect(t, y, EventRemoteEdit).Data.(RemoteEditPayload)
	if got.Content != "ab" || got.FileID != f.fileID {
		t.Errorf("remoteEdit = %+v", got)
	}
	expectNothing(t, f, x)
	expectNothing(t, f, outside)

	if f.cache.Get(f.fileID) != "ab" {
		t.Errorf("cache = %q", f.cache.Get(f.fileID))
	}
	if got := f.storedContents(t, f.fileID); got != "ab" {
		t.Errorf("store = %q", got)
	}
}

func TestApplyEdit_LastWriterWinsInApplyOrder(t *testing.T) {
	f := newFixture(t)
	x := f.inFile(t, "x", "u-owner", f.fileID)
	y := f.inFile(t, "y", "u-editor", f.fileID)

	const edits = 50
	for i := range edits {
		f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: fmt.Sprintf("v%02d", i)})
	}

	msgs := drain(t, f, y)
	if len(msgs) == 0 {
		t.Fatal("peer received no edits")
	}
	last := ""
	for _, msg := range msgs {
		content := msg.Data.(RemoteEditPayload).Content
		if content <= last {
			t.Fatalf("peer saw %s after %s", content, last)
		}
		last = content
	}

	want := fmt.Sprintf("v%02d", edits-1)
	if last != want {
		t.Errorf("last broadcast = %s, want %s", last, want)
	}
	if f.cache.Get(f.fileID) != want {
		t.Errorf("cache = %s, want %s", f.cache.Get(f.fileID), want)
	}
	if got := f.storedContents(t, f.fileID); got != want {
		t.Errorf("store = %s, want %s", got, want)
	}
	expectNothing(t, f, x)
}

func TestApplyEdit_ConcurrentWritersConverge(t *testing.T) {
	f := newFixture(t)
	x := f.inFile(t, "x", "u-owner", f.fileID)
	y := f.inFile(t, "y", "u-editor", f.fileID)
	observer := f.inFile(t, "z", "u-viewer", f.fileID)

	var wg sync.WaitGroup
	for _, c := range []*fakeConn{x, y} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				f.send(t, c, EventEditFile, EditFilePayload{FileID: f.fileID, Content: fmt.Sprintf("%s-%d", c.id, i)})
			}
		}()
	}
	wg.Wait()

	msgs := drain(t, f, observer)
	final := f.cache.Get(f.fileID)
	if got := f.storedContents(t, f.fileID); got != final {
		t.Errorf("store %q and cache %q diverged", got, final)
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Data.(RemoteEditPayload).Content != final {
		t.Errorf("observer's last edit is not the final contents %q", final)
	}
}

func TestApplyEdit_ViewerIsRejected(t *testing.T) {
	f := newFixture(t)
	viewer := f.inFile(t, "v", "u-viewer", f.fileID)
	peer := f.inFile(t, "p", "u-owner", f.fileID)

	f.send(t, viewer, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "hacked"})

	msg := expect(t, viewer, EventFileError)
	if !strings.Contains(msg.Data.(FileErrorPayload).Message, "cannot edit") {
		t.Errorf("fileError = %+v", msg.Data)
	}
	expectNothing(t, f, peer)
	if got := f.storedContents(t, f.fileID); got != "a" {
		t.Errorf("store = %q, want unchanged", got)
	}
}

func TestApplyEdit_FileOutsideCurrentState(t *testing.T) {
	f := newFixture(t)
	x := f.joined(t, "x", "u-owner")

	stray := &models.File{Name: "stray.py", Contents: "s"}
	if err := f.store.Files().Create(context.Background(), stray); err != nil {
		t.Fatal(err)
	}

	f.send(t, x, EventEditFile, EditFilePayload{FileID: stray.ID, Content: "edited"})

	msg := expect(t, x, EventFileError)
	if msg.Data.(FileErrorPayload).FileID != stray.ID {
		t.Errorf("fileError = %+v", msg.Data)
	}
	if _, ok := f.cache.Lookup(stray.ID); ok {
		t.Error("rejected edit reached the cache")
	}
}

type failingUpdates struct {
	collabRepo.FileRepository
}

func (failingUpdates) UpdateContents(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestApplyEdit_PersistenceFailureReachesOriginatorOnly(t *testing.T) {
	f := newFixture(t, withFiles(func(r collabRepo.FileRepository) collabRepo.FileRepository {
		return failingUpdates{r}
	}))
	x := f.inFile(t, "x", "u-owner", f.fileID)
	y := f.inFile(t, "y", "u-editor", f.fileID)

	f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "lost"})

	msg := expect(t, x, EventFileError)
	if !strings.Contains(msg.Data.(FileErrorPayload).Message, "failed to save") {
		t.Errorf("fileError = %+v", msg.Data)
	}
	expectNothing(t, f, y)

	// cache and store diverge until the next successful write
	if f.cache.Get(f.fileID) != "lost" {
		t.Errorf("cache = %q, want lost", f.cache.Get(f.fileID))
	}
	if got := f.storedContents(t, f.fileID); got != "a" {
		t.Errorf("store = %q, want a", got)
	}
}

func TestApplyEdit_RoleIsReadPerEdit(t *testing.T) {
	tests := []struct {
		name    string
		members []models.Collaborator
		wantMsg string
	}{
		{
			name:    "removed",
			members: []models.Collaborator{{UserID: "u-owner", Role: models.RoleOwner}},
			wantMsg: "not a collaborator",
		},
		{
			name: "downgraded to viewer",
			members: []models.Collaborator{
				{UserID: "u-owner", Role: models.RoleOwner},
				{UserID: "u-editor", Role: models.RoleViewer},
			},
			wantMsg: "cannot edit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			editor := f.inFile(t, "e", "u-editor", f.fileID)
			peer := f.inFile(t, "p", "u-owner", f.fileID)

			ctx := context.Background()
			project, err := f.store.Projects().GetByID(ctx, f.project.ID)
			if err != nil {
				t.Fatal(err)
			}
			project.Collaborators = tt.members
			if err := f.store.Projects().Update(ctx, project); err != nil {
				t.Fatal(err)
			}

			f.send(t, editor, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "hijacked"})

			msg := expect(t, editor, EventFileError)
			if !strings.Contains(msg.Data.(FileErrorPayload).Message, tt.wantMsg) {
				t.Errorf("fileError = %+v, want %q", msg.Data, tt.wantMsg)
			}
			expectNothing(t, f, peer)
			if got := f.storedContents(t, f.fileID); got != "a" {
				t.Errorf("store = %q, want unchanged", got)
			}
			if got := f.cache.Get(f.fileID); got != "a" {
				t.Errorf("cache = %q, want unchanged", got)
			}
		})
	}
}

// gatedUpdates holds the write of one content until released and fails the
// write of another
type gatedUpdates struct {
	collabRepo.FileRepository
	hold, fail string
	reached    chan struct{}
	release    chan struct{}
	failed     chan struct{}
}

func newGatedUpdates(r collabRepo.FileRepository, hold, fail string) *gatedUpdates {
	return &gatedUpdates{
		FileRepository: r,
		hold:           hold,
		fail:           fail,
		reached:        make(chan struct{}),
		release:        make(chan struct{}),
		failed:         make(chan struct{}),
	}
}

func (r *gatedUpdates) UpdateContents(ctx context.Context, id, contents string) error {
	if r.fail != "" && contents == r.fail {
		defer close(r.failed)
		return errors.New("disk full")
	}
	if contents == r.hold {
		close(r.reached)
		<-r.release
	}
	return r.FileRepository.UpdateContents(ctx, id, contents)
}

func TestApplyEdit_FailedNewerEditDoesNotHideSavedOne(t *testing.T) {
	var gate *gatedUpdates
	f := newFixture(t, withFiles(func(r collabRepo.FileRepository) collabRepo.FileRepository {
		gate = newGatedUpdates(r, "A", "B")
		return gate
	}))
	x := f.inFile(t, "x", "u-owner", f.fileID)
	y := f.inFile(t, "y", "u-editor", f.fileID)

	f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "A"})
	<-gate.reached
	f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "B"})

	// wait for B to be queued behind A, then hold the loop so B is applied
	// before A's broadcast step runs
	deadline := time.Now().Add(waitTimeout)
	for {
		queued := false
		if err := f.hub.call(context.Background(), func() {
			l := f.hub.lanes[f.fileID]
			queued = l != nil && l.pending == 2
		}); err != nil {
			t.Fatal(err)
		}
		if queued {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second edit never queued")
		}
		time.Sleep(time.Millisecond)
	}
	hold := make(chan struct{})
	f.hub.post(func() { <-hold })
	close(gate.release)
	<-gate.failed
	close(hold)

	if got := expect(t, y, EventRemoteEdit).Data.(RemoteEditPayload); got.Content != "A" {
		t.Errorf("peer got %q, want the saved edit A", got.Content)
	}
	expect(t, x, EventFileError)
	expectNothing(t, f, y)

	if got := f.storedContents(t, f.fileID); got != "A" {
		t.Errorf("store = %q, want A", got)
	}
}

func TestApplyEdit_BackupWaitsForEditInFlight(t *testing.T) {
	var gate *gatedUpdates
	f := newFixture(t, withFiles(func(r collabRepo.FileRepository) collabRepo.FileRepository {
		gate = newGatedUpdates(r, "ab", "")
		return gate
	}))
	snapshots := svc.NewSnapshotService(
		f.store.Projects(), f.store.States(), gate, f.store.TxManager(),
		auth.NewRoleAuthorizer(), f.cache, f.hub, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	s0 := f.project.CurrentStateID
	x := f.inFile(t, "x", "u-owner", f.fileID)

	f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "ab"})
	<-gate.reached

	done := make(chan error, 1)
	var backedUp *models.Project
	go func() {
		var err error
		backedUp, err = snapshots.CreateBackup(context.Background(), f.project.ID, "u-owner")
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("backup finished while an edit to the current state was being written: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	if got := f.storedContents(t, f.fileID); got != "ab" {
		t.Errorf("saved state file = %q, want ab", got)
	}
	state, err := f.store.States().GetByID(context.Background(), backedUp.CurrentStateID)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.storedContents(t, state.FileIDs[0]); got != "ab" {
		t.Errorf("backup copy = %q, want ab", got)
	}
	if !slices.Equal(backedUp.SavedStates, []string{s0}) {
		t.Errorf("saved states = %v, want [%s]", backedUp.SavedStates, s0)
	}
}

func TestApplyEdit_Validation(t *testing.T) {
	f := newFixture(t)
	x := f.joined(t, "x", "u-owner")

	tests := []struct {
		name  string
		event string
		data  any
	}{
		{"missing file id", EventEditFile, EditFilePayload{Content: "x"}},
		{"oversized content", EventEditFile, EditFilePayload{FileID: f.fileID, Content: strings.Repeat("x", 1<<20+1)}},
		{"unknown event", "renameFile", FilePayload{FileID: f.fileID}},
		{"wrong payload type", EventJoinFile, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.send(t, x, tt.event, tt.data)
			expect(t, x, EventFileError)
		})
	}
}

func TestJoinProject_Gating(t *testing.T) {
	f := newFixture(t)

	stranger := f.connect(t, "s", "u-stranger")
	f.send(t, stranger, EventJoinProject, ProjectPayload{ProjectID: f.project.ID})
	expect(t, stranger, EventFileError)
	if _, ok := f.hub.registry.Session("s"); ok {
		t.Error("non-collaborator got a session")
	}

	missing := f.connect(t, "m", "u-owner")
	f.send(t, missing, EventJoinProject, ProjectPayload{ProjectID: "missing"})
	expect(t, missing, EventFileError)

	editor := f.connect(t, "e", "u-editor")
	f.send(t, editor, EventJoinProject, ProjectPayload{ProjectID: f.project.ID})
	joined := expect(t, editor, EventProjectJoined).Data.(ProjectJoinedPayload)
	if joined.Role != models.RoleEditor {
		t.Errorf("role = %q, want EDITOR", joined.Role)
	}
}

func TestLeaveProject(t *testing.T) {
	f := newFixture(t)
	x := f.inFile(t, "x", "u-owner", f.fileID)

	f.send(t, x, EventLeaveProject, ProjectPayload{ProjectID: f.project.ID})
	f.settle(t)

	if _, ok := f.hub.registry.Session("x"); ok {
		t.Error("session survived leaveProject")
	}
	if f.hub.registry.InFile("x", f.fileID) {
		t.Error("file room membership survived leaveProject")
	}
	if _, ok := f.cache.Lookup(f.fileID); !ok {
		t.Error("leaving dropped cached contents")
	}
}

func TestLeaveProject_DeletedProject(t *testing.T) {
	f := newFixture(t)
	x := f.joined(t, "x", "u-owner")

	if err := f.store.Projects().Delete(context.Background(), f.project.ID); err != nil {
		t.Fatal(err)
	}

	f.send(t, x, EventLeaveProject, ProjectPayload{ProjectID: f.project.ID})
	expect(t, x, EventFileError)
}

func TestDisconnect_ReleasesMemberships(t *testing.T) {
	f := newFixture(t)
	x := f.inFile(t, "x", "u-owner", f.fileID)
	y := f.inFile(t, "y", "u-editor", f.fileID)

	f.send(t, x, EventEditFile, EditFilePayload{FileID: f.fileID, Content: "bye"})
	f.hub.Disconnect(x)
	f.hub.Disconnect(y)
	f.settle(t)

	projects, files := f.hub.registry.RoomCounts()
	if projects != 0 || files != 0 {
		t.Errorf("room counts = %d, %d after disconnect", projects, files)
	}
	if got := f.storedContents(t, f.fileID); got != "bye" {
		t.Errorf("in-flight edit was abandoned: store = %q", got)
	}
}

func TestStructuralEvents_ReachWholeProjectRoom(t *testing.T) {
	f := newFixture(t)
	x := f.joined(t, "x", "u-owner")
	y := f.joined(t, "y", "u-viewer")

	file := &models.File{ID: "new", Name: "new.py"}
	f.hub.FileCreated(f.project.ID, file)
	for _, c := range []*fakeConn{x, y} {
		got := expect(t, c, EventFileCreated).Data.(FileCreatedPayload)
		if got.File.ID != "new" {
			t.Errorf("%s: fileCreated = %+v", c.id, got.File)
		}
	}

	f.cache.Put(f.fileID, "cached")
	f.hub.FileDeleted(f.project.ID, f.fileID)
	for _, c := range []*fakeConn{x, y} {
		expect(t, c, EventFileDeleted)
	}
	f.settle(t)
	if _, ok := f.cache.Lookup(f.fileID); ok {
		t.Error("deleted file still cached")
	}
}

func TestStateChanged_InvalidatesAndNotifies(t *testing.T) {
	f := newFixture(t)
	x := f.inFile(t, "x", "u-owner", f.fileID)

	f.hub.StateChanged(f.project.ID, "s2", []string{f.fileID}, services.StateChangeRestore)

	got := expect(t, x, EventStateChanged).Data.(StateChangedPayload)
	if got.StateID != "s2" || got.Reason != "restore" || got.ProjectID != f.project.ID {
		t.Errorf("stateChanged = %+v", got)
	}
	f.settle(t)
	if _, ok := f.cache.Lookup(f.fileID); ok {
		t.Error("stale file still cached")
	}
}
