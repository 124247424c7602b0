// Package manifest reads and writes per-node YAML manifests stored
// under a repository's .caspian/manifests directory. The manifest is
// the durable record of what a node is for: its goal, ground rules,
// agent session, and lifecycle status.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caspianhq/caspian/internal/types"
)

// AgentInfo records which agent worked on the node.
type AgentInfo struct {
	Model     string `yaml:"model,omitempty"`
	SessionID string `yaml:"session_id,omitempty"`
}

// TestConfig describes the tests a node must pass before approval.
type TestConfig struct {
	Required []string `yaml:"required,omitempty"`
	Command  string   `yaml:"command,omitempty"`
}

// StatusInfo tracks the node's lifecycle state and who moved it there.
type StatusInfo struct {
	State          types.NodeState `yaml:"state"`
	TransitionedAt time.Time       `yaml:"transitioned_at"`
	TransitionedBy string          `yaml:"transitioned_by"`
	CloseReason    string          `yaml:"close_reason,omitempty"`
}

// NodeManifest is the per-node manifest document.
type NodeManifest struct {
	NodeID        string     `yaml:"node_id"`
	Parent        string     `yaml:"parent"`
	CreatedAt     time.Time  `yaml:"created_at"`
	Agent         AgentInfo  `yaml:"agent,omitempty"`
	Goal          string     `yaml:"goal"`
	GroundRules   []string   `yaml:"ground_rules,omitempty"`
	ConflictsWith []string   `yaml:"conflicts_with,omitempty"`
	Tests         TestConfig `yaml:"tests,omitempty"`
	Status        StatusInfo `yaml:"status"`
}

// New creates a manifest with defaults for a freshly created node.
func New(nodeID, parent, goal string) *NodeManifest {
	return &NodeManifest{
		NodeID:    nodeID,
		Parent:    parent,
		CreatedAt: time.Now().UTC(),
		Goal:      goal,
		Status: StatusInfo{
			State:          types.NodeStateInProgress,
			TransitionedAt: time.Now().UTC(),
			TransitionedBy: "human",
		},
	}
}

// AddGroundRule appends a constraint, dropping blank input.
func (m *NodeManifest) AddGroundRule(rule string) {
	rule = strings.TrimSpace(rule)
	if rule != "" {
		m.GroundRules = append(m.GroundRules, rule)
	}
}

// Transition moves the manifest to a new state, recording the actor.
func (m *NodeManifest) Transition(state types.NodeState, actor string) {
	m.Status.State = state
	m.Status.TransitionedAt = time.Now().UTC()
	m.Status.TransitionedBy = actor
}

// Dir returns the manifests directory for a repository.
func Dir(repoPath string) string {
	return filepath.Join(repoPath, ".caspian", "manifests")
}

// Path returns the manifest file path for a node. Slashes in the node
// ID are sanitized so the file stays inside the manifests directory.
func Path(repoPath, nodeID string) string {
	safe := strings.ReplaceAll(nodeID, "/", "_")
	return filepath.Join(Dir(repoPath), safe+".yaml")
}

// Parse decodes a manifest from YAML.
func Parse(data []byte) (*NodeManifest, error) {
	var m NodeManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Load reads a node's manifest from disk. Returns (nil, nil) when the
// node has no manifest.
func Load(repoPath, nodeID string) (*NodeManifest, error) {
	data, err := os.ReadFile(Path(repoPath, nodeID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Save writes a node's manifest to disk, creating the manifests
// directory if needed.
func Save(repoPath string, m *NodeManifest) error {
	if err := os.MkdirAll(Dir(repoPath), 0o755); err != nil {
		return fmt.Errorf("failed to create manifests directory: %w", err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(Path(repoPath, m.NodeID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Delete removes a node's manifest. Missing files are not an error.
func Delete(repoPath, nodeID string) error {
	err := os.Remove(Path(repoPath, nodeID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}
	return nil
}

// DetectTestCommand guesses a test command from well-known build files
// in the repository root. Returns "" when nothing is recognized.
func DetectTestCommand(repoPath string) string {
	checks := []struct {
		file    string
		command string
	}{
		{"package.json", "npm test"},
		{"jest.config.js", "npm test"},
		{"jest.config.ts", "npm test"},
		{"vitest.config.js", "npm test"},
		{"vitest.config.ts", "npm test"},
		{"pytest.ini", "pytest"},
		{"pyproject.toml", "pytest"},
		{"setup.py", "python -m pytest"},
		{"Cargo.toml", "cargo test"},
		{"go.mod", "go test ./..."},
	}

	for _, c := range checks {
		if _, err := os.Stat(filepath.Join(repoPath, c.file)); err == nil {
			return c.command
		}
	}
	return ""
}
