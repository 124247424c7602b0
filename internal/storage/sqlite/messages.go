package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caspianhq/caspian/internal/types"
)

// AppendMessage stores one chat message.
func (s *SQLiteStorage) AppendMessage(ctx context.Context, msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, repo_id, node_id, sender_type, sender_id, content, message_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID, msg.RepoID, nullString(msg.NodeID), msg.SenderType,
		nullString(msg.SenderID), msg.Content, msg.MessageType,
		nullString(msg.Metadata), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListMessages returns messages for a repository, oldest first. A non-empty
// nodeID narrows to one node's thread; limit 0 means no limit.
func (s *SQLiteStorage) ListMessages(ctx context.Context, repoID, nodeID string, limit int) ([]*types.Message, error) {
	query := `
		SELECT id, repo_id, node_id, sender_type, sender_id, content, message_type, metadata, created_at
		FROM messages WHERE repo_id = ?`
	args := []any{repoID}

	if nodeID != "" {
		query += ` AND node_id = ?`
		args = append(args, nodeID)
	}
	query += ` ORDER BY created_at`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*types.Message
	for rows.Next() {
		var msg types.Message
		var nodeID, senderID, metadata sql.NullString

		err := rows.Scan(&msg.ID, &msg.RepoID, &nodeID, &msg.SenderType,
			&senderID, &msg.Content, &msg.MessageType, &metadata, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.NodeID = nodeID.String
		msg.SenderID = senderID.String
		msg.Metadata = metadata.String
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
