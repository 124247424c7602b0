package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/types"
)

// fakeStore records session-manager persistence calls.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*types.AgentSession
	messages []*types.Message
	statuses []types.ExecutionStatus
	bumps    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*types.AgentSession)}
}

func (s *fakeStore) UpsertAgentSession(ctx context.Context, session *types.AgentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.NodeID] = &copied
	return nil
}

func (s *fakeStore) EndAgentSession(ctx context.Context, nodeID string, status types.SessionStatus, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[nodeID]; ok {
		session.Status = status
		session.EndedAt = &endedAt
	}
	return nil
}

func (s *fakeStore) GetAgentSession(ctx context.Context, nodeID string) (*types.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[nodeID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) UpdateExecutionStatus(ctx context.Context, id string, status types.ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) AppendMessage(ctx context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeStore) BumpNotification(ctx context.Context, nodeID string, requiresInput bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bumps++
	return nil
}

func (s *fakeStore) messageContents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var contents []string
	for _, msg := range s.messages {
		contents = append(contents, msg.Content)
	}
	return contents
}

// fakeAgent writes a shell script that stands in for the agent CLI.
func fakeAgent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func waitForExit(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event := <-ch:
			if event.Kind == events.KindAgentExited {
				return event
			}
		case <-deadline:
			t.Fatal("timed out waiting for agent exit")
		}
	}
}

func TestSpawnStreamsAndPersists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch := bus.Subscribe(ctx)
	store := newFakeStore()

	agent := fakeAgent(t, `
echo '{"type":"system","subtype":"init","session_id":"abc"}'
echo '{"type":"assistant","message":{"id":"m1","content":[{"type":"text","text":"working on it"}]}}'
echo 'not json at all'
echo '{"type":"result","subtype":"success","result":"all done"}'
`)

	m := NewManager(store, bus, agent)
	session, err := m.Spawn(ctx, SpawnConfig{
		NodeID:       "node-1",
		RepoID:       "repo-1",
		WorktreePath: t.TempDir(),
		Goal:         "do the thing",
	})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, types.SessionRunning, session.Status)
	assert.NotNil(t, session.ProcessID)

	waitForExit(t, ch)

	contents := store.messageContents()
	assert.Contains(t, contents, "working on it")
	assert.Contains(t, contents, "all done")
	// The raw non-JSON line flows to the bus but is not stored as a message.
	assert.NotContains(t, contents, "not json at all")

	stored, err := store.GetAgentSession(ctx, "node-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.SessionCompleted, stored.Status)
	assert.NotNil(t, stored.EndedAt)

	assert.False(t, m.Running("node-1"))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []types.ExecutionStatus{types.ExecutionRunning, types.ExecutionIdle}, store.statuses)
	assert.Equal(t, 1, store.bumps)
}

func TestSpawnRefusesSecondAgent(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	store := newFakeStore()

	agent := fakeAgent(t, "sleep 30")
	m := NewManager(store, bus, agent)

	wt := t.TempDir()
	_, err := m.Spawn(ctx, SpawnConfig{NodeID: "node-1", RepoID: "r", WorktreePath: wt, Goal: "g"})
	require.NoError(t, err)
	defer m.StopAll(ctx)

	_, err = m.Spawn(ctx, SpawnConfig{NodeID: "node-1", RepoID: "r", WorktreePath: wt, Goal: "g"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	// Other nodes are unaffected.
	_, err = m.Spawn(ctx, SpawnConfig{NodeID: "node-2", RepoID: "r", WorktreePath: wt, Goal: "g"})
	require.NoError(t, err)
}

func TestStopMarksSessionStopped(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()
	store := newFakeStore()

	agent := fakeAgent(t, "sleep 30")
	m := NewManager(store, bus, agent)

	_, err := m.Spawn(ctx, SpawnConfig{NodeID: "node-1", RepoID: "r", WorktreePath: t.TempDir(), Goal: "g"})
	require.NoError(t, err)
	require.True(t, m.Running("node-1"))

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx, "node-1"))

	assert.False(t, m.Running("node-1"))
	stored, err := store.GetAgentSession(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionStopped, stored.Status)
}

func TestStopWithoutAgent(t *testing.T) {
	m := NewManager(newFakeStore(), events.NewBus(), "claude")
	err := m.Stop(context.Background(), "node-1")
	assert.Error(t, err)
}

func TestSpawnValidation(t *testing.T) {
	m := NewManager(newFakeStore(), events.NewBus(), "claude")
	ctx := context.Background()

	_, err := m.Spawn(ctx, SpawnConfig{Goal: "g", WorktreePath: t.TempDir()})
	assert.Error(t, err, "missing node ID")

	_, err = m.Spawn(ctx, SpawnConfig{NodeID: "n", WorktreePath: t.TempDir()})
	assert.Error(t, err, "missing goal")

	_, err = m.Spawn(ctx, SpawnConfig{NodeID: "n", Goal: "g", WorktreePath: "/does/not/exist"})
	assert.Error(t, err, "missing worktree")
}

func TestStatusFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := NewManager(store, events.NewBus(), "claude")

	session, err := m.Status(ctx, "never-ran")
	require.NoError(t, err)
	assert.Nil(t, session)

	require.NoError(t, store.UpsertAgentSession(ctx, &types.AgentSession{
		ID:     "s1",
		NodeID: "node-1",
		Status: types.SessionCompleted,
	}))
	session, err = m.Status(ctx, "node-1")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, types.SessionCompleted, session.Status)
}
