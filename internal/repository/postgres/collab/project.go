package collab

import (
	"context"
	"fmt"
	"log/slog"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	"collabedit/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProjectRepository implements the ProjectRepository interface
type PostgresProjectRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(config *postgres.RepositoryConfig) collabRepo.ProjectRepository {
	return &PostgresProjectRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Create inserts the project row and its collaborators. Callers that need both
// writes to be atomic run it inside TransactionManager.ExecTx.
func (r *PostgresProjectRepository) Create(ctx context.Context, project *models.Project) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, creator_id, current_state_id, saved_states, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, r.tables.Projects)

	if project.SavedStates == nil {
		project.SavedStates = []string{}
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		project.Name,
		project.CreatorID,
		project.CurrentStateID,
		project.SavedStates,
		project.CreatedAt,
		project.UpdatedAt,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("project references unknown creator or state: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create project: %w", err)
	}

	return r.replaceCollaborators(ctx, project.ID, project.Collaborators)
}

// GetByID retrieves a project with its collaborators
func (r *PostgresProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	return r.get(ctx, id, "")
}

// GetByIDForUpdate locks the project row until the transaction in ctx ends
func (r *PostgresProjectRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Project, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *PostgresProjectRepository) get(ctx context.Context, id, lock string) (*models.Project, error) {
	query := fmt.Sprintf(`
		SELECT id, name, creator_id, current_state_id, saved_states, created_at, updated_at
		FROM %s
		WHERE id = $1
		%s
	`, r.tables.Projects, lock)

	var project models.Project
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.CreatorID,
		&project.CurrentStateID,
		&project.SavedStates,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	collaborators, err := r.listCollaborators(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	project.Collaborators = collaborators

	return &project, nil
}

// ListForUser retrieves all projects the user collaborates on, ordered by updated_at DESC
func (r *PostgresProjectRepository) ListForUser(ctx context.Context, userID string) ([]models.Project, error) {
	query := fmt.Sprintf(`
		SELECT p.id, p.name, p.creator_id, p.current_state_id, p.saved_states, p.created_at, p.updated_at
		FROM %s p
		JOIN %s c ON c.project_id = p.id
		WHERE c.user_id = $1
		ORDER BY p.updated_at DESC
	`, r.tables.Projects, r.tables.Collaborators)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var project models.Project
		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.CreatorID,
			&project.CurrentStateID,
			&project.SavedStates,
			&project.CreatedAt,
			&project.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	for i := range projects {
		collaborators, err := r.listCollaborators(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Collaborators = collaborators
	}

	return projects, nil
}

// Update replaces name, state pointers and collaborators
func (r *PostgresProjectRepository) Update(ctx context.Context, project *models.Project) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $1, current_state_id = $2, saved_states = $3, updated_at = $4
		WHERE id = $5
	`, r.tables.Projects)

	if project.SavedStates == nil {
		project.SavedStates = []string{}
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		project.Name,
		project.CurrentStateID,
		project.SavedStates,
		project.UpdatedAt,
		project.ID,
	)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("state %s: %w", project.CurrentStateID, domain.ErrNotFound)
		}
		return fmt.Errorf("update project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", project.ID, domain.ErrNotFound)
	}

	return r.replaceCollaborators(ctx, project.ID, project.Collaborators)
}

// Delete removes the project row; collaborator rows cascade
func (r *PostgresProjectRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Projects)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (r *PostgresProjectRepository) listCollaborators(ctx context.Context, projectID string) ([]models.Collaborator, error) {
	query := fmt.Sprintf(`
		SELECT user_id, role
		FROM %s
		WHERE project_id = $1
		ORDER BY created_at ASC
	`, r.tables.Collaborators)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []models.Collaborator{}
	for rows.Next() {
		var c models.Collaborator
		if err := rows.Scan(&c.UserID, &c.Role); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}

	return collaborators, nil
}

// replaceCollaborators rewrites the collaborator set, keeping created_at of
// rows that survive so ordering stays stable.
func (r *PostgresProjectRepository) replaceCollaborators(ctx context.Context, projectID string, collaborators []models.Collaborator) error {
	userIDs := make([]string, len(collaborators))
	roles := make([]string, len(collaborators))
	for i, c := range collaborators {
		userIDs[i] = c.UserID
		roles[i] = string(c.Role)
	}

	executor := postgres.GetExecutor(ctx, r.pool)

	deleteQuery := fmt.Sprintf(`
		DELETE FROM %s
		WHERE project_id = $1 AND NOT (user_id = ANY($2::text[]))
	`, r.tables.Collaborators)
	if _, err := executor.Exec(ctx, deleteQuery, projectID, userIDs); err != nil {
		return fmt.Errorf("prune collaborators: %w", err)
	}

	upsertQuery := fmt.Sprintf(`
		INSERT INTO %s (project_id, user_id, role, created_at)
		SELECT $1, u.user_id, u.role, NOW()
		FROM unnest($2::text[], $3::text[]) AS u(user_id, role)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, r.tables.Collaborators)
	if _, err := executor.Exec(ctx, upsertQuery, projectID, userIDs, roles); err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("collaborator references unknown user: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("upsert collaborators: %w", err)
	}

	return nil
}
