package git

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git wraps the git CLI.
type Git struct {
	// gitPath is the path to the git executable
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// run executes git -C repoPath with the given args and returns stdout.
func (g *Git) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	full := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, g.gitPath, full...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s failed in %s: %s: %w", args[0], repoPath, msg, err)
		}
		return "", fmt.Errorf("git %s failed in %s: %w", args[0], repoPath, err)
	}
	return string(output), nil
}

// IsRepo reports whether path is inside a git working tree.
func (g *Git) IsRepo(ctx context.Context, path string) bool {
	out, err := g.run(ctx, path, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// HasCommits reports whether the repository has at least one commit.
// A freshly initialized repository has no HEAD to resolve.
func (g *Git) HasCommits(ctx context.Context, path string) bool {
	_, err := g.run(ctx, path, "rev-parse", "--verify", "HEAD")
	return err == nil
}

// CurrentBranch returns the branch currently checked out.
func (g *Git) CurrentBranch(ctx context.Context, path string) (string, error) {
	out, err := g.run(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// MainBranch determines the repository's main branch. It prefers the
// remote HEAD symref, then checks for local main/master, and falls
// back to "main".
func (g *Git) MainBranch(ctx context.Context, path string) (string, error) {
	out, err := g.run(ctx, path, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		ref := strings.TrimSpace(out)
		if name, ok := strings.CutPrefix(ref, "refs/remotes/origin/"); ok && name != "" {
			return name, nil
		}
	}

	branches, err := g.ListBranches(ctx, path)
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{"main", "master"} {
		for _, branch := range branches {
			if branch == candidate {
				return candidate, nil
			}
		}
	}
	return "main", nil
}

// Init initializes a new git repository at path with main as the
// initial branch.
func (g *Git) Init(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, g.gitPath, "init", "--initial-branch=main", path)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git init failed at %s: %s: %w", path, strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// Clone clones url into dest.
func (g *Git) Clone(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, g.gitPath, "clone", url, dest)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone %s failed: %s: %w", url, strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// ListBranches returns the repository's local branch names.
func (g *Git) ListBranches(ctx context.Context, path string) ([]string, error) {
	out, err := g.run(ctx, path, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}

	var branches []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, scanner.Err()
}

// HasUncommittedChanges checks if there are uncommitted changes.
func (g *Git) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	status, err := g.Status(ctx, repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to check uncommitted changes in %s: %w", repoPath, err)
	}
	return status.HasChanges, nil
}

// Status returns the git status of the repository.
func (g *Git) Status(ctx context.Context, repoPath string) (*Status, error) {
	// Use git status --porcelain for machine-readable output
	out, err := g.run(ctx, repoPath, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	status := &Status{
		Modified:  []string{},
		Untracked: []string{},
		Deleted:   []string{},
		Added:     []string{},
		Renamed:   []string{},
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		statusCode := line[0:2]
		filePath := line[3:]

		// Parse status codes: XY where X=index, Y=working tree
		// Reference: https://git-scm.com/docs/git-status#_short_format
		switch {
		case strings.HasPrefix(statusCode, "??"):
			status.Untracked = append(status.Untracked, filePath)
		case strings.HasPrefix(statusCode, "A "), strings.HasPrefix(statusCode, "AM"):
			status.Added = append(status.Added, filePath)
		case strings.HasPrefix(statusCode, "M "), strings.HasPrefix(statusCode, " M"), strings.HasPrefix(statusCode, "MM"):
			status.Modified = append(status.Modified, filePath)
		case strings.HasPrefix(statusCode, "D "), strings.HasPrefix(statusCode, " D"):
			status.Deleted = append(status.Deleted, filePath)
		case strings.HasPrefix(statusCode, "R "):
			status.Renamed = append(status.Renamed, filePath)
		default:
			// Other changes (copied, updated but unmerged, etc.)
			status.Modified = append(status.Modified, filePath)
		}

		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}

	return status, nil
}

// Commit creates a git commit and returns its hash.
func (g *Git) Commit(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if opts.AddAll {
		if _, err := g.run(ctx, repoPath, "add", "-A"); err != nil {
			return "", err
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}

	if _, err := g.run(ctx, repoPath, args...); err != nil {
		return "", err
	}

	hashOut, err := g.run(ctx, repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get commit hash in %s: %w", repoPath, err)
	}
	return strings.TrimSpace(hashOut), nil
}

// Diff returns the diff output for the repository. With staged set,
// it diffs the index instead of the working tree.
func (g *Git) Diff(ctx context.Context, repoPath string, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--staged")
	}
	return g.run(ctx, repoPath, args...)
}

// CreateBranch creates a branch from the given start point without
// checking it out.
func (g *Git) CreateBranch(ctx context.Context, repoPath, name, startPoint string) error {
	_, err := g.run(ctx, repoPath, "branch", name, startPoint)
	return err
}

// DeleteBranch force-deletes a local branch.
func (g *Git) DeleteBranch(ctx context.Context, repoPath, name string) error {
	_, err := g.run(ctx, repoPath, "branch", "-D", name)
	return err
}
