// Package storage defines the persistence interface for the Caspian
// backend and its default SQLite implementation.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/caspianhq/caspian/internal/storage/sqlite"
	"github.com/caspianhq/caspian/internal/types"
)

// Storage is the persistence boundary. Getters return (nil, nil) when the
// record does not exist; absence is not an error.
type Storage interface {
	// Repositories
	AddRepository(ctx context.Context, repo *types.Repository) error
	GetRepository(ctx context.Context, id string) (*types.Repository, error)
	GetRepositoryByPath(ctx context.Context, path string) (*types.Repository, error)
	ListRepositories(ctx context.Context) ([]*types.Repository, error)
	ListActiveRepositories(ctx context.Context) ([]*types.Repository, error)
	RemoveRepository(ctx context.Context, id string) error
	UpdateLastAccessed(ctx context.Context, id string) error
	SetTabOrder(ctx context.Context, id string, tabOrder *int) error

	// Nodes
	CreateNode(ctx context.Context, node *types.Node) error
	GetNode(ctx context.Context, id string) (*types.Node, error)
	ListNodes(ctx context.Context, repoID string) ([]*types.Node, error)
	UpdateNodeState(ctx context.Context, id string, state types.NodeState) error
	UpdateExecutionStatus(ctx context.Context, id string, status types.ExecutionStatus) error
	UpdateWorktree(ctx context.Context, id string, status types.WorktreeStatus, path string) error
	TouchNode(ctx context.Context, id string) error
	DeleteNode(ctx context.Context, id string) error

	// Agent sessions (at most one per node)
	UpsertAgentSession(ctx context.Context, session *types.AgentSession) error
	GetAgentSession(ctx context.Context, nodeID string) (*types.AgentSession, error)
	EndAgentSession(ctx context.Context, nodeID string, status types.SessionStatus, endedAt time.Time) error

	// Chat messages
	AppendMessage(ctx context.Context, msg *types.Message) error
	ListMessages(ctx context.Context, repoID, nodeID string, limit int) ([]*types.Message, error)

	// Notification badges
	BumpNotification(ctx context.Context, nodeID string, requiresInput bool) error
	MarkNodeViewed(ctx context.Context, nodeID string) error
	GetNotificationState(ctx context.Context, nodeID string) (*types.NotificationState, error)

	// UI state key-value store
	GetUIState(ctx context.Context, key string) (string, error)
	SetUIState(ctx context.Context, key, value string) error

	// Persisted backend settings
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests).
	Path string
}

// DefaultConfig returns a config pointing at the per-user data directory
// (e.g. ~/.local/share/caspian/caspian.db on Linux).
func DefaultConfig() *Config {
	return &Config{Path: DefaultDatabasePath()}
}

// DefaultDatabasePath returns the standard database location, creating the
// data directory if needed.
func DefaultDatabasePath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	dir := filepath.Join(base, "caspian")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "caspian.db")
}

// NewStorage creates the SQLite storage backend.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultDatabasePath()
	}
	return sqlite.New(cfg.Path)
}
