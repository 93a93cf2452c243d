package collab

import (
	"context"
	"fmt"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	"collabedit/internal/repository/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStateRepository implements the StateRepository interface
type PostgresStateRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

// NewStateRepository creates a new state repository
func NewStateRepository(config *postgres.RepositoryConfig) collabRepo.StateRepository {
	return &PostgresStateRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

func (r *PostgresStateRepository) Create(ctx context.Context, state *models.State) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_ids, created_at, updated_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, r.tables.States)

	if state.FileIDs == nil {
		state.FileIDs = []string{}
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, state.FileIDs, state.CreatedAt, state.UpdatedAt).
		Scan(&state.ID, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create state: %w", err)
	}

	return nil
}

func (r *PostgresStateRepository) GetByID(ctx context.Context, id string) (*models.State, error) {
	query := fmt.Sprintf(`
		SELECT id, file_ids, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, r.tables.States)

	var state models.State
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, id).Scan(&state.ID, &state.FileIDs, &state.CreatedAt, &state.UpdatedAt)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("state %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get state: %w", err)
	}

	return &state, nil
}

func (r *PostgresStateRepository) Update(ctx context.Context, state *models.State) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET file_ids = $1, updated_at = $2
		WHERE id = $3
	`, r.tables.States)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, state.FileIDs, state.UpdatedAt, state.ID)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("state %s: %w", state.ID, domain.ErrNotFound)
	}

	return nil
}

func (r *PostgresStateRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::text[])`, r.tables.States)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete states: %w", err)
	}

	return nil
}
