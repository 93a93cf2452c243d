package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	models "collabedit/internal/domain/models/collab"
	"collabedit/internal/domain/repositories"
	collabRepo "collabedit/internal/domain/repositories/collab"

	"github.com/google/uuid"
)

// Store is an in-memory document store for tests and the memory STORE mode.
// Values are copied on the way in and out so callers never share slices with it.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	users    map[string]models.User
	projects map[string]models.Project
	states   map[string]models.State
	files    map[string]models.File
	now      func() time.Time

	// held for the whole of a transaction; stands in for row locks
	txMu sync.Mutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:    make(map[string]models.User),
		projects: make(map[string]models.Project),
		states:   make(map[string]models.State),
		files:    make(map[string]models.File),
		now:      time.Now,
	}
}

func (s *Store) Users() collabRepo.UserRepository       { return &userRepo{s} }
func (s *Store) Projects() collabRepo.ProjectRepository { return &projectRepo{s} }
func (s *Store) States() collabRepo.StateRepository     { return &stateRepo{s} }
func (s *Store) Files() collabRepo.FileRepository       { return &fileRepo{s} }

// TxManager returns a TransactionManager that undoes the writes of fn when it fails
func (s *Store) TxManager() repositories.TransactionManager { return &txManager{s} }

func newID() string {
	return uuid.NewString()
}

type txKey struct{}

// undoLog holds, newest last, the steps that put back what a transaction
// overwrote. Steps run with mu held.
type undoLog struct {
	steps []func()
}

// track records the current value of table[id] so a failing transaction can
// put it back. Call with mu held, before the write.
func track[V any](ctx context.Context, table map[string]V, id string) {
	undo, ok := ctx.Value(txKey{}).(*undoLog)
	if !ok {
		return
	}
	prev, existed := table[id]
	undo.steps = append(undo.steps, func() {
		if existed {
			table[id] = prev
		} else {
			delete(table, id)
		}
	})
}

type txManager struct {
	s *Store
}

// ExecTx gives all-or-nothing semantics for fn. Transactions run one at a
// time. A rollback only reverts keys fn wrote, so writes made outside the
// transaction while it ran survive.
func (m *txManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	if _, ok := ctx.Value(txKey{}).(*undoLog); ok {
		return fn(ctx)
	}

	m.s.txMu.Lock()
	defer m.s.txMu.Unlock()

	undo := &undoLog{}
	if err := fn(context.WithValue(ctx, txKey{}, undo)); err != nil {
		m.s.mu.Lock()
		defer m.s.mu.Unlock()
		for i := len(undo.steps) - 1; i >= 0; i-- {
			undo.steps[i]()
		}
		return err
	}
	return nil
}

func cloneProject(p models.Project) models.Project {
	p.Collaborators = slices.Clone(p.Collaborators)
	p.SavedStates = slices.Clone(p.SavedStates)
	if p.SavedStates == nil {
		p.SavedStates = []string{}
	}
	return p
}

func cloneState(st models.State) models.State {
	st.FileIDs = slices.Clone(st.FileIDs)
	if st.FileIDs == nil {
		st.FileIDs = []string{}
	}
	return st
}

func cloneFile(f models.File) models.File {
	f.CommentIDs = slices.Clone(f.CommentIDs)
	if f.CommentIDs == nil {
		f.CommentIDs = []string{}
	}
	return f
}
