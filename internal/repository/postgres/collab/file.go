package collab

import (
	"context"
	"fmt"
	"time"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	collabRepo "collabedit/internal/domain/repositories/collab"
	"collabedit/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFileRepository implements the FileRepository interface
type PostgresFileRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
}

// NewFileRepository creates a new file repository
func NewFileRepository(config *postgres.RepositoryConfig) collabRepo.FileRepository {
	return &PostgresFileRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const fileColumns = `id, name, file_type, contents, comment_ids, created_at, updated_at`

func scanFile(row pgx.Row, file *models.File) error {
	return row.Scan(
		&file.ID,
		&file.Name,
		&file.Type,
		&file.Contents,
		&file.CommentIDs,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
}

func (r *PostgresFileRepository) Create(ctx context.Context, file *models.File) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, file_type, contents, comment_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, r.tables.Files)

	if file.CommentIDs == nil {
		file.CommentIDs = []string{}
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		file.Name,
		file.Type,
		file.Contents,
		file.CommentIDs,
		file.CreatedAt,
		file.UpdatedAt,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	return nil
}

func (r *PostgresFileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, fileColumns, r.tables.Files)

	var file models.File
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := scanFile(executor.QueryRow(ctx, query, id), &file); err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get file: %w", err)
	}

	return &file, nil
}

// GetMany keeps the order of ids via WITH ORDINALITY
func (r *PostgresFileRepository) GetMany(ctx context.Context, ids []string) ([]models.File, error) {
	files := []models.File{}
	if len(ids) == 0 {
		return files, nil
	}

	query := fmt.Sprintf(`
		SELECT f.id, f.name, f.file_type, f.contents, f.comment_ids, f.created_at, f.updated_at
		FROM unnest($1::text[]) WITH ORDINALITY AS w(id, ord)
		JOIN %s f ON f.id = w.id
		ORDER BY w.ord
	`, r.tables.Files)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var file models.File
		if err := scanFile(rows, &file); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return files, nil
}

func (r *PostgresFileRepository) UpdateContents(ctx context.Context, id, contents string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET contents = $1, updated_at = $2
		WHERE id = $3
	`, r.tables.Files)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, contents, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update file contents: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (r *PostgresFileRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Files)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (r *PostgresFileRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::text[])`, r.tables.Files)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}

	return nil
}
