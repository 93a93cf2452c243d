package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if existing.Username == user.Username {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("user '%s' already exists", user.Username),
				ResourceType: "user",
				ResourceID:   existing.ID,
			}
		}
	}
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.s.now()
	}
	track(ctx, r.s.users, user.ID)
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &user, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
}

type projectRepo struct{ s *Store }

func (r *projectRepo) Create(ctx context.Context, project *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.states[project.CurrentStateID]; !ok {
		return fmt.Errorf("state %s: %w", project.CurrentStateID, domain.ErrNotFound)
	}
	project.ID = newID()
	track(ctx, r.s.projects, project.ID)
	r.s.projects[project.ID] = cloneProject(*project)
	return nil
}

func (r *projectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	project, ok := r.s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	project = cloneProject(project)
	return &project, nil
}

// GetByIDForUpdate needs no lock of its own: transactions already run one at a time
func (r *projectRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Project, error) {
	return r.GetByID(ctx, id)
}

func (r *projectRepo) ListForUser(ctx context.Context, userID string) ([]models.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	projects := []models.Project{}
	for _, project := range r.s.projects {
		if _, ok := project.RoleOf(userID); ok {
			projects = append(projects, cloneProject(project))
		}
	}
	slices.SortFunc(projects, func(a, b models.Project) int {
		return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})
	return projects, nil
}

func (r *projectRepo) Update(ctx context.Context, project *models.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.projects[project.ID]; !ok {
		return fmt.Errorf("project %s: %w", project.ID, domain.ErrNotFound)
	}
	if _, ok := r.s.states[project.CurrentStateID]; !ok {
		return fmt.Errorf("state %s: %w", project.CurrentStateID, domain.ErrNotFound)
	}
	track(ctx, r.s.projects, project.ID)
	r.s.projects[project.ID] = cloneProject(*project)
	return nil
}

func (r *projectRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	track(ctx, r.s.projects, id)
	delete(r.s.projects, id)
	return nil
}

type stateRepo struct{ s *Store }

func (r *stateRepo) Create(ctx context.Context, state *models.State) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	state.ID = newID()
	*state = cloneState(*state)
	track(ctx, r.s.states, state.ID)
	r.s.states[state.ID] = cloneState(*state)
	return nil
}

func (r *stateRepo) GetByID(ctx context.Context, id string) (*models.State, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	state, ok := r.s.states[id]
	if !ok {
		return nil, fmt.Errorf("state %s: %w", id, domain.ErrNotFound)
	}
	state = cloneState(state)
	return &state, nil
}

func (r *stateRepo) Update(ctx context.Context, state *models.State) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.states[state.ID]; !ok {
		return fmt.Errorf("state %s: %w", state.ID, domain.ErrNotFound)
	}
	track(ctx, r.s.states, state.ID)
	r.s.states[state.ID] = cloneState(*state)
	return nil
}

func (r *stateRepo) DeleteMany(ctx context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		track(ctx, r.s.states, id)
		delete(r.s.states, id)
	}
	return nil
}

type fileRepo struct{ s *Store }

func (r *fileRepo) Create(ctx context.Context, file *models.File) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	file.ID = newID()
	*file = cloneFile(*file)
	track(ctx, r.s.files, file.ID)
	r.s.files[file.ID] = cloneFile(*file)
	return nil
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	file, ok := r.s.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	file = cloneFile(file)
	return &file, nil
}

func (r *fileRepo) GetMany(ctx context.Context, ids []string) ([]models.File, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	files := make([]models.File, 0, len(ids))
	for _, id := range ids {
		if file, ok := r.s.files[id]; ok {
			files = append(files, cloneFile(file))
		}
	}
	return files, nil
}

func (r *fileRepo) UpdateContents(ctx context.Context, id, contents string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	file, ok := r.s.files[id]
	if !ok {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	track(ctx, r.s.files, id)
	file.Contents = contents
	file.UpdatedAt = r.s.now()
	r.s.files[id] = file
	return nil
}

func (r *fileRepo) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.files[id]; !ok {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	track(ctx, r.s.files, id)
	delete(r.s.files, id)
	return nil
}

func (r *fileRepo) DeleteMany(ctx context.Context, ids []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range ids {
		track(ctx, r.s.files, id)
		delete(r.s.files, id)
	}
	return nil
}
