package git

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const caspianDir = ".caspian"

// WorktreesDir returns the directory where a repository's worktrees live.
func WorktreesDir(repoPath string) string {
	return filepath.Join(repoPath, caspianDir, "worktrees")
}

// sanitizeWorktreeName makes a branch name usable as a worktree name.
// Git uses the name for .git/worktrees/<name>, so it can't contain /.
func sanitizeWorktreeName(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// AddWorktree creates a branch from parentBranch and checks it out as a
// worktree under <repo>/.caspian/worktrees/<sanitized-branch>.
// The parent may be a local branch or a remote ref like origin/main.
func (g *Git) AddWorktree(ctx context.Context, repoPath, branch, parentBranch string) (*WorktreeInfo, error) {
	worktreesDir := WorktreesDir(repoPath)
	if err := os.MkdirAll(worktreesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create worktrees directory: %w", err)
	}

	// Keep .caspian out of git status and diffs. Not fatal if the
	// gitignore can't be written.
	if err := ensureIgnored(repoPath); err != nil {
		slog.Warn("failed to add .caspian to .gitignore", "repo", repoPath, "error", err)
	}

	name := sanitizeWorktreeName(branch)
	worktreePath := filepath.Join(worktreesDir, name)
	if _, err := os.Stat(worktreePath); err == nil {
		return nil, fmt.Errorf("worktree already exists at %s", worktreePath)
	}

	if _, err := g.run(ctx, repoPath, "worktree", "add", "-b", branch, worktreePath, parentBranch); err != nil {
		return nil, err
	}

	return &WorktreeInfo{
		Name:      name,
		Path:      worktreePath,
		Branch:    branch,
		CreatedAt: time.Now(),
	}, nil
}

// RemoveWorktree removes a worktree's checkout directory and prunes the
// repository's worktree metadata. The name may be the branch name.
func (g *Git) RemoveWorktree(ctx context.Context, repoPath, name string) error {
	worktreePath := filepath.Join(WorktreesDir(repoPath), sanitizeWorktreeName(name))

	// git worktree remove refuses dirty worktrees; the node is being
	// discarded, so force it and fall back to removing the directory.
	if _, err := g.run(ctx, repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
		if rmErr := os.RemoveAll(worktreePath); rmErr != nil {
			return fmt.Errorf("failed to remove worktree at %s: %w", worktreePath, rmErr)
		}
	}

	if _, err := g.run(ctx, repoPath, "worktree", "prune"); err != nil {
		return err
	}
	return nil
}

// ListWorktrees returns the repository's linked worktrees, parsed from
// git worktree list --porcelain. The main working tree is excluded.
func (g *Git) ListWorktrees(ctx context.Context, repoPath string) ([]*WorktreeInfo, error) {
	out, err := g.run(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	mainPath, err := filepath.Abs(repoPath)
	if err != nil {
		mainPath = repoPath
	}

	var worktrees []*WorktreeInfo
	var current *WorktreeInfo
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "worktree "):
			path := strings.TrimPrefix(line, "worktree ")
			current = &WorktreeInfo{
				Name: filepath.Base(path),
				Path: path,
			}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				ref := strings.TrimPrefix(line, "branch ")
				current.Branch = strings.TrimPrefix(ref, "refs/heads/")
			}
		case line == "":
			if current != nil && current.Path != mainPath {
				worktrees = append(worktrees, current)
			}
			current = nil
		}
	}
	if current != nil && current.Path != mainPath {
		worktrees = append(worktrees, current)
	}
	return worktrees, scanner.Err()
}

// ensureIgnored makes sure .caspian is listed in the repository's
// .gitignore, creating the file if needed.
func ensureIgnored(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return os.WriteFile(gitignorePath, []byte(caspianDir+"\n"), 0o644)
	}

	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == caspianDir || trimmed == caspianDir+"/" {
			return nil
		}
	}

	entry := caspianDir + "\n"
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		entry = "\n" + entry
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry)
	return err
}
