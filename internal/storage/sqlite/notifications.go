package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/caspianhq/caspian/internal/types"
)

// BumpNotification increments a node's unread counter and records whether
// the agent is waiting on human input. The row is created on first use.
func (s *SQLiteStorage) BumpNotification(ctx context.Context, nodeID string, requiresInput bool) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_state (node_id, unread_count, requires_input, last_notification_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			unread_count = unread_count + 1,
			requires_input = excluded.requires_input,
			last_notification_at = excluded.last_notification_at
	`, nodeID, boolToInt(requiresInput), now)
	if err != nil {
		return fmt.Errorf("failed to bump notification state: %w", err)
	}
	return nil
}

// MarkNodeViewed resets a node's unread counter. Viewing a node that never
// notified is a no-op.
func (s *SQLiteStorage) MarkNodeViewed(ctx context.Context, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_state
		SET unread_count = 0, requires_input = 0, last_viewed_at = ?
		WHERE node_id = ?
	`, time.Now(), nodeID)
	if err != nil {
		return fmt.Errorf("failed to mark node viewed: %w", err)
	}
	return nil
}

// GetNotificationState returns a node's badge state, or (nil, nil) if the
// node has never produced a notification.
func (s *SQLiteStorage) GetNotificationState(ctx context.Context, nodeID string) (*types.NotificationState, error) {
	var state types.NotificationState
	var requiresInput int
	var lastNotification, lastViewed sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT node_id, unread_count, requires_input, last_notification_at, last_viewed_at
		FROM notification_state WHERE node_id = ?
	`, nodeID).Scan(&state.NodeID, &state.UnreadCount, &requiresInput,
		&lastNotification, &lastViewed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification state: %w", err)
	}

	state.RequiresInput = requiresInput != 0
	if lastNotification.Valid {
		state.LastNotificationAt = &lastNotification.Time
	}
	if lastViewed.Valid {
		state.LastViewedAt = &lastViewed.Time
	}
	return &state, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
