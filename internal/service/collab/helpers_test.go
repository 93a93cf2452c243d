package collab

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/repository/memory"
	"collabedit/internal/service/auth"
)

var errStoreDown = errors.New("store unavailable")

type testEnv struct {
	store     *memory.Store
	projRepo  collabRepo.ProjectRepository
	files     collabRepo.FileRepository
	projects  collabSvc.ProjectService
	fileSvc   collabSvc.FileService
	snapshots collabSvc.SnapshotService
	notifier  *recordingNotifier
	live      *fakeContentSource
	sandbox   *fakeSandbox

	owner, editor, viewer, outsider *models.User
}

type envOption func(*testEnv)

// withProjectRepo swaps the project repository the services see
func withProjectRepo(wrap func(collabRepo.ProjectRepository) collabRepo.ProjectRepository) envOption {
	return func(e *testEnv) { e.projRepo = wrap(e.projRepo) }
}

// withFileRepo swaps the file repository the services see
func withFileRepo(wrap func(collabRepo.FileRepository) collabRepo.FileRepository) envOption {
	return func(e *testEnv) { e.files = wrap(e.files) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	env := &testEnv{
		store:    store,
		projRepo: store.Projects(),
		files:    store.Files(),
		notifier: &recordingNotifier{},
		live:     &fakeContentSource{contents: map[string]string{}},
		sandbox:  &fakeSandbox{},
	}
	for _, opt := range opts {
		opt(env)
	}

	identity := NewIdentityService(store.Users(), logger)
	authorizer := auth.NewRoleAuthorizer()
	tx := store.TxManager()

	env.projects = NewProjectService(env.projRepo, store.States(), env.files, tx, identity, authorizer, logger)
	env.fileSvc = NewFileService(env.projRepo, store.States(), env.files, tx, authorizer, env.live, env.notifier, env.sandbox, logger)
	env.snapshots = NewSnapshotService(env.projRepo, store.States(), env.files, tx, authorizer, env.live, env.notifier, logger)

	ctx := context.Background()
	for _, u := range []struct {
		dest     **models.User
		username string
	}{
		{&env.owner, "owner"},
		{&env.editor, "editor"},
		{&env.viewer, "viewer"},
		{&env.outsider, "outsider"},
	} {
		user, err := identity.EnsureUser(ctx, "id-"+u.username, u.username)
		if err != nil {
			t.Fatalf("EnsureUser(%s) error = %v", u.username, err)
		}
		*u.dest = user
	}

	return env
}

// newProject creates a project owned by owner with editor and viewer added and
// the given files in its current state
func (e *testEnv) newProject(t *testing.T, files map[string]string) *models.Project {
	t.Helper()
	ctx := context.Background()

	project, err := e.projects.CreateProject(ctx, &collabSvc.CreateProjectRequest{UserID: e.owner.ID, Name: "demo"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	for username, role := range map[string]models.Role{"editor": models.RoleEditor, "viewer": models.RoleViewer} {
		if _, err := e.projects.AddCollaborator(ctx, project.ID, e.owner.ID, &collabSvc.AddCollaboratorRequest{Username: username, Role: role}); err != nil {
			t.Fatalf("AddCollaborator(%s) error = %v", username, err)
		}
	}
	for name, contents := range files {
		if _, err := e.fileSvc.CreateFile(ctx, project.ID, e.owner.ID, &collabSvc.CreateFileRequest{Name: name, Contents: contents}); err != nil {
			t.Fatalf("CreateFile(%s) error = %v", name, err)
		}
	}

	e.notifier.reset()
	return e.reload(t, project.ID)
}

func (e *testEnv) reload(t *testing.T, projectID string) *models.Project {
	t.Helper()
	project, err := e.store.Projects().GetByID(context.Background(), projectID)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return project
}

// contentsByName returns name -> contents for a state's files as stored
func (e *testEnv) contentsByName(t *testing.T, stateID string) map[string]string {
	t.Helper()
	ctx := context.Background()
	state, err := e.store.States().GetByID(ctx, stateID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	files, err := e.store.Files().GetMany(ctx, state.FileIDs)
	if err != nil {
		t.Fatalf("load files: %v", err)
	}
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Name] = f.Contents
	}
	return out
}

func (e *testEnv) fileIDByName(t *testing.T, stateID, name string) string {
	t.Helper()
	ctx := context.Background()
	state, _ := e.store.States().GetByID(ctx, stateID)
	files, _ := e.store.Files().GetMany(ctx, state.FileIDs)
	for _, f := range files {
		if f.Name == name {
			return f.ID
		}
	}
	t.Fatalf("file %s not in state %s", name, stateID)
	return ""
}

type stateChange struct {
	projectID, stateID string
	staleFileIDs       []string
	reason             collabSvc.StateChangeReason
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	deleted []string
	changes []stateChange
}

func (n *recordingNotifier) FileCreated(projectID string, file *models.File) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, file.ID)
}

func (n *recordingNotifier) FileDeleted(projectID, fileID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, fileID)
}

func (n *recordingNotifier) StateChanged(projectID, stateID string, staleFileIDs []string, reason collabSvc.StateChangeReason) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, stateChange{projectID, stateID, staleFileIDs, reason})
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created, n.deleted, n.changes = nil, nil, nil
}

type fakeContentSource struct {
	mu       sync.Mutex
	contents map[string]string
}

func (f *fakeContentSource) Lookup(fileID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contents[fileID]
	return c, ok
}

func (f *fakeContentSource) set(fileID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents[fileID] = content
}

type fakeSandbox struct {
	mu       sync.Mutex
	lastName string
	lastCode string
}

func (f *fakeSandbox) Execute(ctx context.Context, fileName, contents string) (*collabSvc.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastName, f.lastCode = fileName, contents
	return &collabSvc.RunResult{Success: true, Stdout: contents}, nil
}

// failingFileRepo fails Create once armed and allow further calls succeeded
type failingFileRepo struct {
	collabRepo.FileRepository
	mu    sync.Mutex
	armed bool
	allow int

	created []string // IDs created while armed
}

func (r *failingFileRepo) arm(allow int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed, r.allow = true, allow
}

func (r *failingFileRepo) Create(ctx context.Context, file *models.File) error {
	r.mu.Lock()
	if r.armed {
		if r.allow == 0 {
			r.mu.Unlock()
			return errStoreDown
		}
		r.allow--
	}
	r.mu.Unlock()

	if err := r.FileRepository.Create(ctx, file); err != nil {
		return err
	}
	r.mu.Lock()
	if r.armed {
		r.created = append(r.created, file.ID)
	}
	r.mu.Unlock()
	return nil
}

// hookedProjectRepo runs a hook before the next Update once armed
type hookedProjectRepo struct {
	collabRepo.ProjectRepository
	mu   sync.Mutex
	hook func()
}

func (r *hookedProjectRepo) arm(hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *hookedProjectRepo) Update(ctx context.Context, project *models.Project) error {
	r.mu.Lock()
	hook := r.hook
	r.hook = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return r.ProjectRepository.Update(ctx, project)
}
