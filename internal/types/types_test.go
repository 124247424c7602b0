package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryValidate(t *testing.T) {
	tord := 0
	tests := []struct {
		name    string
		repo    Repository
		wantErr string
	}{
		{
			name: "valid inactive repository",
			repo: Repository{Name: "caspian", Path: "/home/u/src/caspian", MainBranch: "main"},
		},
		{
			name: "valid active repository",
			repo: Repository{Name: "caspian", Path: "/home/u/src/caspian", MainBranch: "main", TabOrder: &tord},
		},
		{
			name:    "missing name",
			repo:    Repository{Path: "/home/u/src/caspian", MainBranch: "main"},
			wantErr: "name is required",
		},
		{
			name:    "missing path",
			repo:    Repository{Name: "caspian", MainBranch: "main"},
			wantErr: "path is required",
		},
		{
			name:    "missing main branch",
			repo:    Repository{Name: "caspian", Path: "/home/u/src/caspian"},
			wantErr: "main_branch is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.repo.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRepositoryActive(t *testing.T) {
	repo := Repository{Name: "r", Path: "/p", MainBranch: "main"}
	assert.False(t, repo.Active())

	tord := 3
	repo.TabOrder = &tord
	assert.True(t, repo.Active())
}

func TestNodeValidate(t *testing.T) {
	valid := func() Node {
		return Node{
			ID:              "n1",
			RepoID:          "r1",
			InternalBranch:  "ember-river-k9q2m",
			DisplayName:     "ember-river-k9q2m",
			ParentBranch:    "main",
			State:           NodeStateInProgress,
			ExecutionStatus: ExecutionIdle,
			WorktreeStatus:  WorktreeReady,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
			LastActiveAt:    time.Now(),
		}
	}

	n := valid()
	assert.NoError(t, n.Validate())

	n = valid()
	n.RepoID = ""
	assert.Error(t, n.Validate())

	n = valid()
	n.State = "reviewing"
	assert.Error(t, n.Validate())

	n = valid()
	n.ExecutionStatus = "busy"
	assert.Error(t, n.Validate())

	n = valid()
	n.WorktreeStatus = ""
	assert.Error(t, n.Validate())
}

func TestNodeStateIsValid(t *testing.T) {
	for _, s := range []NodeState{NodeStateInProgress, NodeStateReadyForReview, NodeStateApproved, NodeStateClosed} {
		assert.True(t, s.IsValid(), "state %s should be valid", s)
	}
	assert.False(t, NodeState("done").IsValid())
	assert.False(t, NodeState("").IsValid())
}

func TestAgentSessionValidate(t *testing.T) {
	s := AgentSession{
		NodeID:      "n1",
		RepoID:      "r1",
		AdapterType: AdapterClaudeCode,
		Status:      SessionRunning,
		StartedAt:   time.Now(),
	}
	assert.NoError(t, s.Validate())

	s.AdapterType = "cursor"
	assert.Error(t, s.Validate())

	s.AdapterType = AdapterClaudeCode
	s.Status = "wedged"
	assert.Error(t, s.Validate())
}

func TestMessageValidate(t *testing.T) {
	m := Message{
		RepoID:      "r1",
		SenderType:  SenderAgent,
		MessageType: MessageText,
		Content:     "done",
	}
	assert.NoError(t, m.Validate())

	m.Content = ""
	assert.Error(t, m.Validate())

	m.Content = "x"
	m.SenderType = "robot"
	assert.Error(t, m.Validate())
}
