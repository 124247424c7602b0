package manifest

import (
	"fmt"
	"strings"
)

// ValidationResult collects manifest validation findings.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// Validate checks a manifest for required fields and malformed entries.
func (m *NodeManifest) Validate() ValidationResult {
	result := ValidationResult{IsValid: true}

	if strings.TrimSpace(m.NodeID) == "" {
		result.addError("node ID is required")
	}
	if strings.TrimSpace(m.Parent) == "" {
		result.addError("parent branch is required")
	}
	if strings.TrimSpace(m.Goal) == "" {
		result.addError("goal is required")
	}

	for i, rule := range m.GroundRules {
		if strings.TrimSpace(rule) == "" {
			result.addError(fmt.Sprintf("ground rule %d is empty", i+1))
		}
	}

	if !m.Status.State.IsValid() {
		result.addError(fmt.Sprintf("unknown node state %q", m.Status.State))
	}

	if len(m.Tests.Required) > 0 && m.Tests.Command == "" {
		result.Warnings = append(result.Warnings, "tests are required but no test command is set")
	}

	return result
}
