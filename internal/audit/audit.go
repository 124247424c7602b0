// Package audit keeps an append-only activity log per node, stored as
// JSON lines under a repository's .caspian/audit directory. The log is
// the durable trail of who did what to a node and when.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EventType categorizes an audit entry
type EventType string

const (
	EventBranchCreated     EventType = "branch_created"
	EventNodeCreated       EventType = "node_created"
	EventStateTransition   EventType = "state_transition"
	EventGoalChange        EventType = "goal_change"
	EventGroundRuleAdded   EventType = "ground_rule_added"
	EventGroundRuleRemoved EventType = "ground_rule_removed"
	EventGroundRuleEdited  EventType = "ground_rule_edited"
	EventTestsRun          EventType = "tests_run"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     EventType `json:"event_type"`
	NodeID        string    `json:"node_id"`
	Actor         string    `json:"actor"`
	PreviousValue string    `json:"previous_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// NewEntry creates an entry stamped now, attributed to a human by default.
func NewEntry(eventType EventType, nodeID string) Entry {
	return Entry{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		NodeID:    nodeID,
		Actor:     "human",
	}
}

// WithActor overrides the attributed actor.
func (e Entry) WithActor(actor string) Entry {
	if actor != "" {
		e.Actor = actor
	}
	return e
}

// WithValues records the before and after of a change.
func (e Entry) WithValues(previous, new string) Entry {
	e.PreviousValue = previous
	e.NewValue = new
	return e
}

// WithReason records why the change happened.
func (e Entry) WithReason(reason string) Entry {
	e.Reason = reason
	return e
}

// Dir returns the audit directory for a repository.
func Dir(repoPath string) string {
	return filepath.Join(repoPath, ".caspian", "audit")
}

// Path returns the log file for a node. Slashes in the node ID are
// sanitized so the file stays inside the audit directory.
func Path(repoPath, nodeID string) string {
	safe := strings.ReplaceAll(nodeID, "/", "_")
	return filepath.Join(Dir(repoPath), safe+".jsonl")
}

// Append writes one entry to the node's log. The file is opened in
// append mode only; existing lines are never rewritten.
func Append(repoPath string, e Entry) error {
	if err := os.MkdirAll(Dir(repoPath), 0o755); err != nil {
		return fmt.Errorf("failed to create audit directory: %w", err)
	}

	f, err := os.OpenFile(Path(repoPath, e.NodeID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Read returns every entry in a node's log, oldest first. A node with
// no log yields an empty slice.
func Read(repoPath, nodeID string) ([]Entry, error) {
	return readFile(Path(repoPath, nodeID))
}

// RecentActivity returns the newest entries across every node in the
// repository, newest first, capped at limit.
func RecentActivity(repoPath string, limit int) ([]Entry, error) {
	dirEntries, err := os.ReadDir(Dir(repoPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit directory: %w", err)
	}

	var all []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") {
			continue
		}
		entries, err := readFile(filepath.Join(Dir(repoPath), de.Name()))
		if err != nil {
			continue
		}
		all = append(all, entries...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Delete removes a node's log. Missing files are not an error.
func Delete(repoPath, nodeID string) error {
	err := os.Remove(Path(repoPath, nodeID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete audit log: %w", err)
	}
	return nil
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}
