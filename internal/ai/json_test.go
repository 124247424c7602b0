package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONStrategies(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "direct parse",
			text: `{"subject":"feat: add thing","body":"b"}`,
			want: "feat: add thing",
		},
		{
			name: "json code fence",
			text: "```json\n{\"subject\":\"fix: patch bug\"}\n```",
			want: "fix: patch bug",
		},
		{
			name: "bare code fence",
			text: "```\n{\"subject\":\"chore: tidy\"}\n```",
			want: "chore: tidy",
		},
		{
			name: "trailing comma",
			text: `{"subject":"fix: trailing","body":"b",}`,
			want: "fix: trailing",
		},
		{
			name: "json embedded in prose",
			text: "Here is the commit message:\n{\"subject\":\"docs: explain\"}\nHope that helps!",
			want: "docs: explain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result CommitMessageResponse
			require.True(t, parseJSON(tt.text, &result))
			assert.Equal(t, tt.want, result.Subject)
		})
	}
}

func TestParseJSONFailures(t *testing.T) {
	var result CommitMessageResponse
	assert.False(t, parseJSON("", &result))
	assert.False(t, parseJSON("no json here", &result))
	assert.False(t, parseJSON("{truncated", &result))
}

func TestCommitMessageResponseMessage(t *testing.T) {
	r := &CommitMessageResponse{Subject: "feat: x"}
	assert.Equal(t, "feat: x", r.Message())

	r.Body = "details"
	assert.Equal(t, "feat: x\n\ndetails", r.Message())
}

func TestBuildPromptIncludesContext(t *testing.T) {
	g := NewMessageGenerator(nil, "claude-sonnet")
	prompt := g.buildPrompt(CommitMessageRequest{
		NodeID:       "ember-river-k9q2m",
		Goal:         "speed up the parser",
		ChangedFiles: []string{"parser.go", "parser_test.go"},
		Diff:         "diff --git a/parser.go b/parser.go",
	})

	assert.Contains(t, prompt, "ember-river-k9q2m")
	assert.Contains(t, prompt, "speed up the parser")
	assert.Contains(t, prompt, "- parser.go")
	assert.Contains(t, prompt, "diff --git")
}

func TestBuildPromptTruncatesLargeDiff(t *testing.T) {
	g := NewMessageGenerator(nil, "claude-sonnet")
	large := make([]byte, maxDiffChars*2)
	for i := range large {
		large[i] = 'x'
	}

	prompt := g.buildPrompt(CommitMessageRequest{NodeID: "n", Diff: string(large)})
	assert.Contains(t, prompt, "... (truncated)")
	assert.Less(t, len(prompt), maxDiffChars+2000)
}
