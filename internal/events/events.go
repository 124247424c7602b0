// Package events provides the in-process pub/sub bus connecting the
// backend's producers (port registry, file watcher, agent sessions) to
// their consumers (CLI streams, notification bookkeeping).
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind identifies what happened.
type Kind string

const (
	// KindPortAdded indicates a dynamic port was detected
	KindPortAdded Kind = "port_added"
	// KindPortRemoved indicates a dynamic port went away
	KindPortRemoved Kind = "port_removed"
	// KindFilesChanged indicates files changed in a node's worktree
	KindFilesChanged Kind = "files_changed"
	// KindRepositoriesChanged indicates the active repository set changed
	KindRepositoriesChanged Kind = "repositories_changed"
	// KindNodeStateChanged indicates a node moved between lifecycle states
	KindNodeStateChanged Kind = "node_state_changed"
	// KindAgentOutput indicates an agent session produced output
	KindAgentOutput Kind = "agent_output"
	// KindAgentExited indicates an agent session ended
	KindAgentExited Kind = "agent_exited"
)

// Event is one bus message. Payload carries kind-specific data
// (ports.DynamicPort for port events, FilesChangedPayload for file events).
type Event struct {
	Kind      Kind      `json:"kind"`
	RepoID    string    `json:"repo_id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// FilesChangedPayload lists worktree-relative paths that changed within
// one debounce window.
type FilesChangedPayload struct {
	Paths []string `json:"paths"`
}

// AgentOutputPayload carries one line of agent output.
type AgentOutputPayload struct {
	Stream string `json:"stream"` // "stdout" or "stderr"
	Line   string `json:"line"`
}

// AgentExitedPayload reports how an agent session ended.
type AgentExitedPayload struct {
	SessionID string `json:"session_id"`
	ExitCode  int    `json:"exit_code"`
	Err       string `json:"error,omitempty"`
}

const subscriberBuffer = 64

// Bus is a fan-out pub/sub bus. Publish never blocks: a subscriber that
// falls more than subscriberBuffer events behind loses events, which is
// acceptable for display-oriented consumers (the next sweep or listing
// restores an accurate view).
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned channel is closed and
// the subscription removed when ctx is canceled.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish delivers e to every current subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
			slog.Warn("event bus subscriber too slow, dropping event",
				"kind", e.Kind, "dropped_total", b.dropped)
		}
	}
}

// Dropped returns the number of events dropped due to slow subscribers.
func (b *Bus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
