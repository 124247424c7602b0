package git

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// PRStatus describes a branch's pull request as reported by the GitHub CLI.
type PRStatus struct {
	Number           int    `json:"number"`
	URL              string `json:"url"`
	State            string `json:"state"`
	Mergeable        string `json:"mergeable"`
	MergeStateStatus string `json:"mergeStateStatus"`
	Title            string `json:"title"`
}

// GH wraps the gh CLI for pull request lookups.
type GH struct {
	ghPath string
}

// NewGH locates the gh executable.
func NewGH() (*GH, error) {
	ghPath, err := exec.LookPath("gh")
	if err != nil {
		return nil, fmt.Errorf("gh not found in PATH: %w", err)
	}
	return &GH{ghPath: ghPath}, nil
}

// PRForBranch looks up the pull request for a branch, running gh inside
// the given worktree so it resolves the right repository. Returns
// (nil, nil) when the branch has no pull request; gh signals that with
// a non-zero exit.
func (g *GH) PRForBranch(ctx context.Context, worktreePath, branch string) (*PRStatus, error) {
	cmd := exec.CommandContext(ctx, g.ghPath, "pr", "view", branch,
		"--json", "number,url,state,mergeable,mergeStateStatus,title")
	cmd.Dir = worktreePath

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("gh pr view failed: %w", err)
	}
	return parsePRStatus(output)
}

func parsePRStatus(data []byte) (*PRStatus, error) {
	var status PRStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse gh pr view output: %w", err)
	}
	return &status, nil
}
