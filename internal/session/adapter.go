package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SpawnConfig describes the agent run to start for a node.
type SpawnConfig struct {
	// NodeID is the node the agent works on
	NodeID string

	// RepoID is the node's repository
	RepoID string

	// WorktreePath is the agent's working directory
	WorktreePath string

	// Goal is the task prompt
	Goal string

	// Context is optional extra prompt context
	Context string

	// Model pins the model; empty uses the CLI default
	Model string

	// ResumeSessionID resumes a previous CLI session when set
	ResumeSessionID string
}

// buildPrompt assembles the prompt sent to the agent CLI.
func buildPrompt(cfg SpawnConfig) string {
	prompt := cfg.Goal
	if cfg.Context != "" {
		prompt = fmt.Sprintf("%s\n\nContext:\n%s", prompt, cfg.Context)
	}
	return prompt
}

// buildArgs assembles the claude CLI argument list. The CLI is driven in
// stream-json mode so output can be parsed line by line. New runs pin
// the session ID so the session can be resumed later; resumed runs pass
// the stored ID to --resume.
func buildArgs(cfg SpawnConfig, sessionID string) []string {
	args := []string{
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", "acceptEdits",
	}

	if cfg.ResumeSessionID != "" {
		args = append(args, "--resume", sessionID)
	} else {
		args = append(args, "--session-id", sessionID)
	}

	args = append(args, "-p", buildPrompt(cfg))

	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	return args
}

// StreamEvent is one line of the agent CLI's stream-json output.
// Only the fields the backend consumes are modeled.
type StreamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Assistant events carry a message with content blocks.
	Message *StreamMessage `json:"message,omitempty"`

	// Result events carry the final outcome.
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// StreamMessage is the message body of an assistant event.
type StreamMessage struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block within an assistant message.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
	Name     string `json:"name,omitempty"`
}

// parseStreamLine decodes one output line. Non-JSON lines are tolerated:
// they come back as a nil event so callers can pass them through as raw
// output.
func parseStreamLine(line string) *StreamEvent {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil
	}

	var event StreamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return nil
	}
	if event.Type == "" {
		return nil
	}
	return &event
}

// assistantText extracts the text blocks of an assistant event, joined
// with newlines. Returns "" for events without text.
func assistantText(event *StreamEvent) string {
	if event == nil || event.Message == nil {
		return ""
	}

	var parts []string
	for _, block := range event.Message.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}
