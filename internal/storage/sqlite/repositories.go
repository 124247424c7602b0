package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/caspianhq/caspian/internal/types"
)

// AddRepository inserts a new repository. The path must not already be
// tracked; a duplicate path is an error, matching the add flow in the UI.
func (s *SQLiteStorage) AddRepository(ctx context.Context, repo *types.Repository) error {
	if err := repo.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM repositories WHERE path = ?`, repo.Path).Scan(&existing)
	if err == nil {
		return fmt.Errorf("repository already exists at %s", repo.Path)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check for existing repository: %w", err)
	}

	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, name, path, main_branch, tab_order, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, repo.ID, repo.Name, repo.Path, repo.MainBranch, repo.TabOrder, repo.CreatedAt, repo.LastAccessedAt)
	if err != nil {
		return fmt.Errorf("failed to insert repository: %w", err)
	}
	return nil
}

// GetRepository retrieves a repository by ID. Returns (nil, nil) if not found.
func (s *SQLiteStorage) GetRepository(ctx context.Context, id string) (*types.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, main_branch, tab_order, created_at, last_accessed_at
		FROM repositories WHERE id = ?
	`, id)
	return scanRepository(row)
}

// GetRepositoryByPath retrieves a repository by its main checkout path.
// Returns (nil, nil) if not found.
func (s *SQLiteStorage) GetRepositoryByPath(ctx context.Context, path string) (*types.Repository, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, main_branch, tab_order, created_at, last_accessed_at
		FROM repositories WHERE path = ?
	`, path)
	return scanRepository(row)
}

// ListRepositories returns all repositories ordered by name.
func (s *SQLiteStorage) ListRepositories(ctx context.Context) ([]*types.Repository, error) {
	return s.queryRepositories(ctx, `
		SELECT id, name, path, main_branch, tab_order, created_at, last_accessed_at
		FROM repositories ORDER BY name
	`)
}

// ListActiveRepositories returns repositories with a non-null tab order,
// in tab order. This is the "active set" the health sweep covers.
func (s *SQLiteStorage) ListActiveRepositories(ctx context.Context) ([]*types.Repository, error) {
	return s.queryRepositories(ctx, `
		SELECT id, name, path, main_branch, tab_order, created_at, last_accessed_at
		FROM repositories WHERE tab_order IS NOT NULL ORDER BY tab_order
	`)
}

// RemoveRepository deletes a repository; nodes cascade via foreign key.
func (s *SQLiteStorage) RemoveRepository(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove repository: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removal result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository %s not found", id)
	}
	return nil
}

// UpdateLastAccessed stamps the repository's last_accessed_at with now.
func (s *SQLiteStorage) UpdateLastAccessed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET last_accessed_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last_accessed_at: %w", err)
	}
	return nil
}

// SetTabOrder sets or clears a repository's UI tab position. A nil tabOrder
// deactivates the repository (removes it from the health sweep's active set).
func (s *SQLiteStorage) SetTabOrder(ctx context.Context, id string, tabOrder *int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE repositories SET tab_order = ? WHERE id = ?`, tabOrder, id)
	if err != nil {
		return fmt.Errorf("failed to set tab_order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check tab_order result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository %s not found", id)
	}
	return nil
}

func (s *SQLiteStorage) queryRepositories(ctx context.Context, query string, args ...any) ([]*types.Repository, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query repositories: %w", err)
	}
	defer rows.Close()

	var repos []*types.Repository
	for rows.Next() {
		repo, err := scanRepositoryRow(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepositoryRow(row rowScanner) (*types.Repository, error) {
	var repo types.Repository
	var tabOrder sql.NullInt64
	var lastAccessed sql.NullTime

	err := row.Scan(&repo.ID, &repo.Name, &repo.Path, &repo.MainBranch,
		&tabOrder, &repo.CreatedAt, &lastAccessed)
	if err != nil {
		return nil, fmt.Errorf("failed to scan repository: %w", err)
	}

	if tabOrder.Valid {
		tord := int(tabOrder.Int64)
		repo.TabOrder = &tord
	}
	if lastAccessed.Valid {
		repo.LastAccessedAt = &lastAccessed.Time
	}
	return &repo, nil
}

func scanRepository(row *sql.Row) (*types.Repository, error) {
	repo, err := scanRepositoryRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return repo, nil
}
