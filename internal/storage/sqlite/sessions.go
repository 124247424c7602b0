package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/caspianhq/caspian/internal/types"
)

// UpsertAgentSession records a session for a node, replacing any previous
// one. UNIQUE(node_id) on agent_sessions enforces one session row per
// node; restarting an agent overwrites the old record (last write wins).
func (s *SQLiteStorage) UpsertAgentSession(ctx context.Context, session *types.AgentSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (
			id, node_id, repo_id, adapter_type, process_id, status,
			started_at, ended_at, resume_session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			id = excluded.id,
			repo_id = excluded.repo_id,
			adapter_type = excluded.adapter_type,
			process_id = excluded.process_id,
			status = excluded.status,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			resume_session_id = excluded.resume_session_id
	`,
		session.ID, session.NodeID, session.RepoID, session.AdapterType,
		session.ProcessID, session.Status, session.StartedAt, session.EndedAt,
		nullString(session.ResumeSessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent session: %w", err)
	}
	return nil
}

// GetAgentSession retrieves the session for a node. Returns (nil, nil) if
// the node has never run an agent.
func (s *SQLiteStorage) GetAgentSession(ctx context.Context, nodeID string) (*types.AgentSession, error) {
	var session types.AgentSession
	var processID sql.NullInt64
	var endedAt sql.NullTime
	var resumeID sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, node_id, repo_id, adapter_type, process_id, status,
		       started_at, ended_at, resume_session_id
		FROM agent_sessions WHERE node_id = ?
	`, nodeID).Scan(
		&session.ID, &session.NodeID, &session.RepoID, &session.AdapterType,
		&processID, &session.Status, &session.StartedAt, &endedAt, &resumeID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent session: %w", err)
	}

	if processID.Valid {
		pid := int(processID.Int64)
		session.ProcessID = &pid
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	session.ResumeSessionID = resumeID.String
	return &session, nil
}

// EndAgentSession marks a node's session as finished.
func (s *SQLiteStorage) EndAgentSession(ctx context.Context, nodeID string, status types.SessionStatus, endedAt time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid session status: %s", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_sessions SET status = ?, ended_at = ?, process_id = NULL
		WHERE node_id = ?
	`, status, endedAt, nodeID)
	if err != nil {
		return fmt.Errorf("failed to end agent session: %w", err)
	}
	return requireAffected(res, "agent session for node", nodeID)
}
