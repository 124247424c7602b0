package types

import (
	"fmt"
	"time"
)

// AdapterType identifies which agent adapter drives a session
type AdapterType string

const (
	// AdapterClaudeCode runs the Claude Code CLI in stream-json mode
	AdapterClaudeCode AdapterType = "claude_code"
)

// IsValid checks if the adapter type value is valid
func (a AdapterType) IsValid() bool {
	return a == AdapterClaudeCode
}

// SessionStatus represents the lifecycle of an agent session
type SessionStatus string

const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionStopped   SessionStatus = "stopped"
)

// IsValid checks if the session status value is valid
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionIdle, SessionRunning, SessionCompleted, SessionFailed, SessionStopped:
		return true
	}
	return false
}

// AgentSession records one agent subprocess run against a node's worktree.
// At most one session exists per node (UNIQUE node_id in storage).
type AgentSession struct {
	ID          string        `json:"id"`
	NodeID      string        `json:"node_id"`
	RepoID      string        `json:"repo_id"`
	AdapterType AdapterType   `json:"adapter_type"`
	ProcessID   *int          `json:"process_id,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`

	// ResumeSessionID is the upstream agent's own session identifier,
	// used to resume a conversation across process restarts.
	ResumeSessionID string `json:"resume_session_id,omitempty"`
}

// Validate checks if the session has valid field values
func (s *AgentSession) Validate() error {
	if s.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if s.RepoID == "" {
		return fmt.Errorf("repo_id is required")
	}
	if !s.AdapterType.IsValid() {
		return fmt.Errorf("invalid adapter type: %s", s.AdapterType)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid session status: %s", s.Status)
	}
	return nil
}

// SenderType identifies who authored a chat message
type SenderType string

const (
	SenderHuman SenderType = "human"
	SenderAgent SenderType = "agent"
)

// MessageType categorizes chat message content
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageSystem MessageType = "system"
	MessageCode   MessageType = "code"
	MessageError  MessageType = "error"
)

// Message is one chat entry scoped to a repository and optionally a node.
type Message struct {
	ID          string      `json:"id"`
	RepoID      string      `json:"repo_id"`
	NodeID      string      `json:"node_id,omitempty"`
	SenderType  SenderType  `json:"sender_type"`
	SenderID    string      `json:"sender_id,omitempty"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	Metadata    string      `json:"metadata,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Validate checks if the message has valid field values
func (m *Message) Validate() error {
	if m.RepoID == "" {
		return fmt.Errorf("repo_id is required")
	}
	switch m.SenderType {
	case SenderHuman, SenderAgent:
	default:
		return fmt.Errorf("invalid sender type: %s", m.SenderType)
	}
	switch m.MessageType {
	case MessageText, MessageSystem, MessageCode, MessageError:
	default:
		return fmt.Errorf("invalid message type: %s", m.MessageType)
	}
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// NotificationState tracks unread activity per node for badge display.
type NotificationState struct {
	NodeID             string     `json:"node_id"`
	UnreadCount        int        `json:"unread_count"`
	RequiresInput      bool       `json:"requires_input"`
	LastNotificationAt *time.Time `json:"last_notification_at,omitempty"`
	LastViewedAt       *time.Time `json:"last_viewed_at,omitempty"`
}
