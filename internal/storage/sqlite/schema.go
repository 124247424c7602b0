package sqlite

const schema = `
-- Repositories table
CREATE TABLE IF NOT EXISTS repositories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    main_branch TEXT NOT NULL DEFAULT 'main',
    tab_order INTEGER,
    created_at DATETIME NOT NULL,
    last_accessed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_repositories_tab_order ON repositories(tab_order);

-- Nodes table
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    internal_branch TEXT NOT NULL,
    display_name TEXT NOT NULL,
    context TEXT NOT NULL DEFAULT '',
    parent_branch TEXT NOT NULL,
    original_parent_branch TEXT,
    worktree_path TEXT,
    state TEXT NOT NULL CHECK(state IN ('in_progress', 'ready_for_review', 'approved', 'closed')) DEFAULT 'in_progress',
    execution_status TEXT NOT NULL CHECK(execution_status IN ('idle', 'agent_running', 'needs_input')) DEFAULT 'idle',
    worktree_status TEXT NOT NULL CHECK(worktree_status IN ('pending', 'creating', 'ready', 'failed', 'removing')) DEFAULT 'ready',
    goal TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    last_active_at DATETIME NOT NULL,
    UNIQUE(repo_id, internal_branch)
);

CREATE INDEX IF NOT EXISTS idx_nodes_repo ON nodes(repo_id, last_active_at DESC);

-- Agent sessions table (one session row per node)
CREATE TABLE IF NOT EXISTS agent_sessions (
    id TEXT PRIMARY KEY,
    node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    repo_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    adapter_type TEXT NOT NULL,
    process_id INTEGER,
    status TEXT NOT NULL DEFAULT 'idle',
    started_at DATETIME NOT NULL,
    ended_at DATETIME,
    resume_session_id TEXT,
    UNIQUE(node_id)
);

-- Chat messages table
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    repo_id TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    node_id TEXT REFERENCES nodes(id) ON DELETE CASCADE,
    sender_type TEXT NOT NULL CHECK(sender_type IN ('human', 'agent')),
    sender_id TEXT,
    content TEXT NOT NULL,
    message_type TEXT NOT NULL CHECK(message_type IN ('text', 'system', 'code', 'error')),
    metadata TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_repo ON messages(repo_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_node ON messages(node_id, created_at);

-- Notification state table
CREATE TABLE IF NOT EXISTS notification_state (
    node_id TEXT PRIMARY KEY REFERENCES nodes(id) ON DELETE CASCADE,
    unread_count INTEGER NOT NULL DEFAULT 0,
    requires_input INTEGER NOT NULL DEFAULT 0,
    last_notification_at DATETIME,
    last_viewed_at DATETIME
);

-- UI State persistence
CREATE TABLE IF NOT EXISTS ui_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Persisted backend settings
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Initialize default UI state
INSERT OR IGNORE INTO ui_state (key, value) VALUES ('focus_mode', 'false');
INSERT OR IGNORE INTO ui_state (key, value) VALUES ('sidebar_width', '300');
INSERT OR IGNORE INTO ui_state (key, value) VALUES ('active_repo_id', '');
INSERT OR IGNORE INTO ui_state (key, value) VALUES ('active_node_id', '');
`

// migrations are run individually with errors ignored: SQLite errors on
// ALTER TABLE for a column that already exists, which is exactly the signal
// that the migration was applied on a previous run.
var migrations = []string{
	// v1.1: resume support for agent sessions
	"ALTER TABLE agent_sessions ADD COLUMN resume_session_id TEXT",
	// v1.2: async worktree lifecycle
	"ALTER TABLE nodes ADD COLUMN worktree_status TEXT NOT NULL DEFAULT 'ready'",
	// v1.3: retarget tracking
	"ALTER TABLE nodes ADD COLUMN original_parent_branch TEXT",
	"UPDATE nodes SET original_parent_branch = parent_branch WHERE original_parent_branch IS NULL",
	// v1.4: repositories gained UI tab ordering
	"ALTER TABLE repositories ADD COLUMN tab_order INTEGER",
}
