// Package ai generates commit messages for node checkpoints using the
// Anthropic API.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model responses wrap JSON in code fences or prose often enough that a
// direct unmarshal is not reliable; these patterns back the cleanup
// fallbacks in parseJSON.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// parseJSON decodes a model reply into dst, trying progressively more
// forgiving strategies: direct parse, code-fence removal, trailing-comma
// cleanup, and finally extracting the first JSON object from mixed prose.
func parseJSON(text string, dst any) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	if json.Unmarshal([]byte(trimmed), dst) == nil {
		return true
	}

	unfenced := strings.TrimSpace(codeFenceRegex.ReplaceAllString(trimmed, "$1"))
	if unfenced != trimmed && json.Unmarshal([]byte(unfenced), dst) == nil {
		return true
	}

	cleaned := trailingCommaRegex.ReplaceAllString(unfenced, "$1")
	if json.Unmarshal([]byte(cleaned), dst) == nil {
		return true
	}

	if extracted := objectRegex.FindString(cleaned); extracted != "" {
		if json.Unmarshal([]byte(extracted), dst) == nil {
			return true
		}
	}
	return false
}
