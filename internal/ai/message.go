package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

const maxDiffChars = 10000

// CommitMessageRequest carries the context for generating a commit
// message for a node checkpoint.
type CommitMessageRequest struct {
	NodeID       string
	Goal         string
	ChangedFiles []string
	Diff         string
}

// CommitMessageResponse is the generated commit message.
type CommitMessageResponse struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Reasoning string `json:"reasoning"`
}

// Message formats subject and body as a full commit message.
func (r *CommitMessageResponse) Message() string {
	if r.Body == "" {
		return r.Subject
	}
	return r.Subject + "\n\n" + r.Body
}

// MessageGenerator generates commit messages using the Anthropic API.
type MessageGenerator struct {
	client        *anthropic.Client
	model         string
	retryAttempts int
	backoff       time.Duration
}

// NewMessageGenerator creates a generator using the given model.
func NewMessageGenerator(client *anthropic.Client, model string) *MessageGenerator {
	return &MessageGenerator{
		client:        client,
		model:         model,
		retryAttempts: 3,
		backoff:       time.Second,
	}
}

// GenerateCommitMessage asks the model for a conventional-commit message
// describing the node's changes.
func (g *MessageGenerator) GenerateCommitMessage(ctx context.Context, req CommitMessageRequest) (*CommitMessageResponse, error) {
	prompt := g.buildPrompt(req)

	var response *anthropic.Message
	err := g.retryWithBackoff(ctx, "commit-message", func(attemptCtx context.Context) error {
		resp, apiErr := g.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(g.model),
			MaxTokens: 1024,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate commit message: %w", err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	var result CommitMessageResponse
	if !parseJSON(responseText, &result) {
		return nil, fmt.Errorf("failed to parse commit message response: %q", responseText)
	}
	if result.Subject == "" {
		return nil, fmt.Errorf("commit message response has no subject: %q", responseText)
	}
	return &result, nil
}

// buildPrompt constructs the prompt for commit message generation.
func (g *MessageGenerator) buildPrompt(req CommitMessageRequest) string {
	var prompt strings.Builder

	prompt.WriteString("You are a commit message generator for a git worktree manager.\n\n")
	prompt.WriteString("Generate a clear, concise commit message following conventional commits format.\n\n")

	prompt.WriteString("## Task Context\n\n")
	prompt.WriteString(fmt.Sprintf("**Node**: %s\n", req.NodeID))
	if req.Goal != "" {
		prompt.WriteString(fmt.Sprintf("**Goal**: %s\n", req.Goal))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Changed Files\n\n")
	if len(req.ChangedFiles) > 0 {
		for _, file := range req.ChangedFiles {
			prompt.WriteString(fmt.Sprintf("- %s\n", file))
		}
	} else {
		prompt.WriteString("(no files listed)\n")
	}
	prompt.WriteString("\n")

	if req.Diff != "" {
		prompt.WriteString("## Diff\n\n")
		prompt.WriteString("```diff\n")
		diff := req.Diff
		if len(diff) > maxDiffChars {
			diff = diff[:maxDiffChars] + "\n... (truncated)"
		}
		prompt.WriteString(diff)
		prompt.WriteString("\n```\n\n")
	}

	prompt.WriteString("## Instructions\n\n")
	prompt.WriteString("Generate a commit message with:\n")
	prompt.WriteString("1. **Subject**: One-line summary (50 chars max), format: `type(scope): description`\n")
	prompt.WriteString("   - Types: feat, fix, docs, refactor, test, chore\n")
	prompt.WriteString("2. **Body**: What changed and why (wrap at 72 chars)\n\n")

	prompt.WriteString("Guidelines:\n")
	prompt.WriteString("- Focus on the 'why' not just the 'what'\n")
	prompt.WriteString("- Use imperative mood: 'add feature' not 'added feature'\n")
	prompt.WriteString("- Keep subject concise, put details in body\n\n")

	prompt.WriteString("Respond with JSON:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"subject\": \"feat(scope): concise description\",\n")
	prompt.WriteString("  \"body\": \"Detailed explanation of changes.\",\n")
	prompt.WriteString("  \"reasoning\": \"Why I chose this message\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}

// retryWithBackoff retries an operation with exponential backoff.
func (g *MessageGenerator) retryWithBackoff(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error
	delay := g.backoff

	for attempt := 1; attempt <= g.retryAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}
		if attempt == g.retryAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, g.retryAttempts, lastErr)
}
