package types

import (
	"fmt"
	"strings"
	"time"
)

// Repository represents a tracked git project root (the main checkout,
// not a worktree).
type Repository struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	MainBranch string `json:"main_branch"`

	// TabOrder determines the repository's position in the UI tab strip.
	// A nil TabOrder means the repository is not currently shown ("inactive");
	// the health sweep only covers repositories with a non-nil TabOrder.
	TabOrder *int `json:"tab_order,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// Validate checks if the repository has valid field values
func (r *Repository) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if r.MainBranch == "" {
		return fmt.Errorf("main_branch is required")
	}
	if r.TabOrder != nil && *r.TabOrder < 0 {
		return fmt.Errorf("tab_order cannot be negative (got %d)", *r.TabOrder)
	}
	return nil
}

// Active reports whether the repository is currently shown in the UI.
func (r *Repository) Active() bool {
	return r.TabOrder != nil
}

// Node represents a git worktree tracked by the application, associated
// with one repository and one branch.
type Node struct {
	ID             string `json:"id"`
	RepoID         string `json:"repo_id"`
	InternalBranch string `json:"internal_branch"`
	DisplayName    string `json:"display_name"`
	Context        string `json:"context,omitempty"`

	// ParentBranch is the branch the node currently rebases/merges against.
	// OriginalParentBranch records where the node was created from, which
	// can differ after a retarget.
	ParentBranch         string `json:"parent_branch"`
	OriginalParentBranch string `json:"original_parent_branch,omitempty"`

	WorktreePath    string          `json:"worktree_path,omitempty"`
	State           NodeState       `json:"state"`
	ExecutionStatus ExecutionStatus `json:"execution_status"`
	WorktreeStatus  WorktreeStatus  `json:"worktree_status"`
	Goal            string          `json:"goal,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Validate checks if the node has valid field values
func (n *Node) Validate() error {
	if n.RepoID == "" {
		return fmt.Errorf("repo_id is required")
	}
	if strings.TrimSpace(n.InternalBranch) == "" {
		return fmt.Errorf("internal_branch is required")
	}
	if strings.TrimSpace(n.DisplayName) == "" {
		return fmt.Errorf("display_name is required")
	}
	if n.ParentBranch == "" {
		return fmt.Errorf("parent_branch is required")
	}
	if !n.State.IsValid() {
		return fmt.Errorf("invalid node state: %s", n.State)
	}
	if !n.ExecutionStatus.IsValid() {
		return fmt.Errorf("invalid execution status: %s", n.ExecutionStatus)
	}
	if !n.WorktreeStatus.IsValid() {
		return fmt.Errorf("invalid worktree status: %s", n.WorktreeStatus)
	}
	return nil
}

// NodeState represents the review lifecycle of a node
type NodeState string

const (
	NodeStateInProgress     NodeState = "in_progress"
	NodeStateReadyForReview NodeState = "ready_for_review"
	NodeStateApproved       NodeState = "approved"
	NodeStateClosed         NodeState = "closed"
)

// IsValid checks if the node state value is valid
func (s NodeState) IsValid() bool {
	switch s {
	case NodeStateInProgress, NodeStateReadyForReview, NodeStateApproved, NodeStateClosed:
		return true
	}
	return false
}

// ExecutionStatus represents what the node's agent is doing right now
type ExecutionStatus string

const (
	ExecutionIdle       ExecutionStatus = "idle"
	ExecutionRunning    ExecutionStatus = "agent_running"
	ExecutionNeedsInput ExecutionStatus = "needs_input"
)

// IsValid checks if the execution status value is valid
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionIdle, ExecutionRunning, ExecutionNeedsInput:
		return true
	}
	return false
}

// WorktreeStatus tracks the async lifecycle of a node's worktree on disk
type WorktreeStatus string

const (
	WorktreePending  WorktreeStatus = "pending"
	WorktreeCreating WorktreeStatus = "creating"
	WorktreeReady    WorktreeStatus = "ready"
	WorktreeFailed   WorktreeStatus = "failed"
	WorktreeRemoving WorktreeStatus = "removing"
)

// IsValid checks if the worktree status value is valid
func (s WorktreeStatus) IsValid() bool {
	switch s {
	case WorktreePending, WorktreeCreating, WorktreeReady, WorktreeFailed, WorktreeRemoving:
		return true
	}
	return false
}
