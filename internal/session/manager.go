// Package session runs coding-agent subprocesses for nodes, streaming
// their output to the event bus and persisting it as chat messages.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/types"
)

// Store is the slice of persistence the session manager needs.
type Store interface {
	UpsertAgentSession(ctx context.Context, session *types.AgentSession) error
	EndAgentSession(ctx context.Context, nodeID string, status types.SessionStatus, endedAt time.Time) error
	GetAgentSession(ctx context.Context, nodeID string) (*types.AgentSession, error)
	UpdateExecutionStatus(ctx context.Context, id string, status types.ExecutionStatus) error
	AppendMessage(ctx context.Context, msg *types.Message) error
	BumpNotification(ctx context.Context, nodeID string, requiresInput bool) error
}

// running tracks one live agent subprocess.
type running struct {
	session *types.AgentSession
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
}

// markStopped records that Stop requested termination, so the exit is
// reported as stopped rather than failed.
func (r *running) markStopped() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *running) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Manager spawns and supervises at most one agent per node.
type Manager struct {
	store   Store
	bus     *events.Bus
	command string

	mu     sync.Mutex
	agents map[string]*running
}

// NewManager creates a session manager. command is the agent executable,
// typically "claude".
func NewManager(store Store, bus *events.Bus, command string) *Manager {
	if command == "" {
		command = "claude"
	}
	return &Manager{
		store:   store,
		bus:     bus,
		command: command,
		agents:  make(map[string]*running),
	}
}

// Spawn starts an agent for a node. A node can have at most one agent;
// spawning while one runs is an error.
func (m *Manager) Spawn(ctx context.Context, cfg SpawnConfig) (*types.AgentSession, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("node ID is required")
	}
	if cfg.Goal == "" {
		return nil, fmt.Errorf("goal is required")
	}
	if _, err := os.Stat(cfg.WorktreePath); err != nil {
		return nil, fmt.Errorf("worktree does not exist: %s", cfg.WorktreePath)
	}

	m.mu.Lock()
	if _, ok := m.agents[cfg.NodeID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("agent already running for node %s", cfg.NodeID)
	}
	// Reserve the slot before the slow spawn work.
	m.agents[cfg.NodeID] = nil
	m.mu.Unlock()

	session, err := m.spawn(ctx, cfg)
	if err != nil {
		m.mu.Lock()
		delete(m.agents, cfg.NodeID)
		m.mu.Unlock()
		return nil, err
	}
	return session, nil
}

func (m *Manager) spawn(ctx context.Context, cfg SpawnConfig) (*types.AgentSession, error) {
	sessionID := cfg.ResumeSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// The process outlives the spawning call's context; Stop and process
	// exit are the ways it ends.
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, m.command, buildArgs(cfg, sessionID)...)
	cmd.Dir = cfg.WorktreePath

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start agent %s: %w", m.command, err)
	}

	pid := cmd.Process.Pid
	session := &types.AgentSession{
		ID:              uuid.NewString(),
		NodeID:          cfg.NodeID,
		RepoID:          cfg.RepoID,
		AdapterType:     types.AdapterClaudeCode,
		ProcessID:       &pid,
		Status:          types.SessionRunning,
		StartedAt:       time.Now(),
		ResumeSessionID: sessionID,
	}
	if err := m.store.UpsertAgentSession(ctx, session); err != nil {
		cancel()
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("failed to record session: %w", err)
	}
	if err := m.store.UpdateExecutionStatus(ctx, cfg.NodeID, types.ExecutionRunning); err != nil {
		slog.Warn("failed to mark node running", "node_id", cfg.NodeID, "error", err)
	}

	run := &running{
		session: session,
		cmd:     cmd,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.agents[cfg.NodeID] = run
	m.mu.Unlock()

	slog.Info("agent started", "node_id", cfg.NodeID, "pid", pid, "session_id", sessionID)

	go m.supervise(cfg, run, stdout, stderr)
	return session, nil
}

// supervise pumps the agent's output until the process exits, then
// records the outcome.
func (m *Manager) supervise(cfg SpawnConfig, run *running, stdout, stderr io.Reader) {
	defer close(run.done)
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			m.handleOutputLine(ctx, cfg, run, scanner.Text())
		}
		return scanner.Err()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			m.bus.Publish(events.Event{
				Kind:   events.KindAgentOutput,
				RepoID: cfg.RepoID,
				NodeID: cfg.NodeID,
				Payload: events.AgentOutputPayload{
					Stream: "stderr",
					Line:   scanner.Text(),
				},
			})
		}
		return scanner.Err()
	})
	if err := g.Wait(); err != nil {
		slog.Warn("agent output pump error", "node_id", cfg.NodeID, "error", err)
	}

	waitErr := run.cmd.Wait()
	run.cancel()

	status := types.SessionCompleted
	switch {
	case run.wasStopped():
		status = types.SessionStopped
	case waitErr != nil:
		status = types.SessionFailed
	}

	m.mu.Lock()
	delete(m.agents, cfg.NodeID)
	m.mu.Unlock()

	if err := m.store.EndAgentSession(ctx, cfg.NodeID, status, time.Now()); err != nil {
		slog.Error("failed to end session", "node_id", cfg.NodeID, "error", err)
	}
	if err := m.store.UpdateExecutionStatus(ctx, cfg.NodeID, types.ExecutionIdle); err != nil {
		slog.Warn("failed to mark node idle", "node_id", cfg.NodeID, "error", err)
	}
	if err := m.store.BumpNotification(ctx, cfg.NodeID, false); err != nil {
		slog.Warn("failed to bump notification", "node_id", cfg.NodeID, "error", err)
	}

	slog.Info("agent exited", "node_id", cfg.NodeID, "status", status)
	exited := events.AgentExitedPayload{SessionID: run.session.ID}
	if run.cmd.ProcessState != nil {
		exited.ExitCode = run.cmd.ProcessState.ExitCode()
	}
	if waitErr != nil && !run.wasStopped() {
		exited.Err = waitErr.Error()
	}
	m.bus.Publish(events.Event{
		Kind:    events.KindAgentExited,
		RepoID:  cfg.RepoID,
		NodeID:  cfg.NodeID,
		Payload: exited,
	})
}

// handleOutputLine publishes one stdout line and persists assistant text
// as a chat message. Non-JSON lines pass through as raw output.
func (m *Manager) handleOutputLine(ctx context.Context, cfg SpawnConfig, run *running, line string) {
	if line == "" {
		return
	}

	m.bus.Publish(events.Event{
		Kind:   events.KindAgentOutput,
		RepoID: cfg.RepoID,
		NodeID: cfg.NodeID,
		Payload: events.AgentOutputPayload{
			Stream: "stdout",
			Line:   line,
		},
	})

	event := parseStreamLine(line)
	if event == nil {
		return
	}

	switch event.Type {
	case "assistant":
		if text := assistantText(event); text != "" {
			m.persistMessage(ctx, cfg, text, types.MessageText)
		}
	case "result":
		if event.Result != "" {
			msgType := types.MessageText
			if event.IsError {
				msgType = types.MessageError
			}
			m.persistMessage(ctx, cfg, event.Result, msgType)
		}
	}
}

func (m *Manager) persistMessage(ctx context.Context, cfg SpawnConfig, content string, msgType types.MessageType) {
	msg := &types.Message{
		ID:          uuid.NewString(),
		RepoID:      cfg.RepoID,
		NodeID:      cfg.NodeID,
		SenderType:  types.SenderAgent,
		Content:     content,
		MessageType: msgType,
		CreatedAt:   time.Now(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		slog.Warn("failed to persist agent message", "node_id", cfg.NodeID, "error", err)
	}
}

// Stop terminates a node's agent and waits for it to be reaped.
func (m *Manager) Stop(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	run, ok := m.agents[nodeID]
	m.mu.Unlock()
	if !ok || run == nil {
		return fmt.Errorf("no agent running for node %s", nodeID)
	}

	run.markStopped()
	run.cancel()

	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the node's current session. Falls back to the stored
// session when no agent is live, and (nil, nil) when the node never ran one.
func (m *Manager) Status(ctx context.Context, nodeID string) (*types.AgentSession, error) {
	m.mu.Lock()
	run, ok := m.agents[nodeID]
	m.mu.Unlock()
	if ok && run != nil {
		return run.session, nil
	}
	return m.store.GetAgentSession(ctx, nodeID)
}

// Running reports whether a node has a live agent.
func (m *Manager) Running(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.agents[nodeID]
	return ok && run != nil
}

// StopAll terminates every live agent.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	runs := make([]*running, 0, len(m.agents))
	for _, run := range m.agents {
		if run != nil {
			runs = append(runs, run)
		}
	}
	m.mu.Unlock()

	for _, run := range runs {
		run.markStopped()
		run.cancel()
	}
	for _, run := range runs {
		select {
		case <-run.done:
		case <-ctx.Done():
			return
		}
	}
}
