package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/caspianhq/caspian/internal/types"
)

// CreateNode inserts a new node.
func (s *SQLiteStorage) CreateNode(ctx context.Context, node *types.Node) error {
	if err := node.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	if node.LastActiveAt.IsZero() {
		node.LastActiveAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (
			id, repo_id, internal_branch, display_name, context,
			parent_branch, original_parent_branch, worktree_path,
			state, execution_status, worktree_status, goal,
			created_at, updated_at, last_active_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		node.ID, node.RepoID, node.InternalBranch, node.DisplayName, node.Context,
		node.ParentBranch, nullString(node.OriginalParentBranch), nullString(node.WorktreePath),
		node.State, node.ExecutionStatus, node.WorktreeStatus, node.Goal,
		node.CreatedAt, node.UpdatedAt, node.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// GetNode retrieves a node by ID. Returns (nil, nil) if not found.
func (s *SQLiteStorage) GetNode(ctx context.Context, id string) (*types.Node, error) {
	row := s.db.QueryRowContext(ctx, nodeSelect+` WHERE id = ?`, id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return node, nil
}

// ListNodes returns a repository's nodes, most recently active first.
func (s *SQLiteStorage) ListNodes(ctx context.Context, repoID string) ([]*types.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		nodeSelect+` WHERE repo_id = ? ORDER BY last_active_at DESC`, repoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*types.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// UpdateNodeState moves a node between lifecycle states.
func (s *SQLiteStorage) UpdateNodeState(ctx context.Context, id string, state types.NodeState) error {
	if !state.IsValid() {
		return fmt.Errorf("invalid node state: %s", state)
	}
	return s.updateNode(ctx, id, `state = ?`, state)
}

// UpdateExecutionStatus records what the node's agent is doing.
func (s *SQLiteStorage) UpdateExecutionStatus(ctx context.Context, id string, status types.ExecutionStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid execution status: %s", status)
	}
	return s.updateNode(ctx, id, `execution_status = ?`, status)
}

// UpdateWorktree records the worktree lifecycle status and path together,
// so a reader never sees a ready status with a stale path.
func (s *SQLiteStorage) UpdateWorktree(ctx context.Context, id string, status types.WorktreeStatus, path string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid worktree status: %s", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes SET worktree_status = ?, worktree_path = ?, updated_at = ?
		WHERE id = ?
	`, status, nullString(path), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update worktree: %w", err)
	}
	return requireAffected(res, "node", id)
}

// TouchNode bumps last_active_at, used to keep the node list ordered by
// recent activity.
func (s *SQLiteStorage) TouchNode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET last_active_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch node: %w", err)
	}
	return requireAffected(res, "node", id)
}

// DeleteNode removes a node; sessions, messages, and notification state
// cascade via foreign keys.
func (s *SQLiteStorage) DeleteNode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return requireAffected(res, "node", id)
}

func (s *SQLiteStorage) updateNode(ctx context.Context, id, setClause string, value any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE nodes SET `+setClause+`, updated_at = ? WHERE id = ?`,
		value, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}
	return requireAffected(res, "node", id)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}

const nodeSelect = `
	SELECT id, repo_id, internal_branch, display_name, context,
	       parent_branch, original_parent_branch, worktree_path,
	       state, execution_status, worktree_status, goal,
	       created_at, updated_at, last_active_at
	FROM nodes`

func scanNode(row rowScanner) (*types.Node, error) {
	var node types.Node
	var originalParent, worktreePath sql.NullString

	err := row.Scan(
		&node.ID, &node.RepoID, &node.InternalBranch, &node.DisplayName, &node.Context,
		&node.ParentBranch, &originalParent, &worktreePath,
		&node.State, &node.ExecutionStatus, &node.WorktreeStatus, &node.Goal,
		&node.CreatedAt, &node.UpdatedAt, &node.LastActiveAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	node.OriginalParentBranch = originalParent.String
	node.WorktreePath = worktreePath.String
	return &node, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
