package git

import "time"

// Status represents the working tree state of a repository,
// parsed from git status --porcelain.
type Status struct {
	Modified   []string
	Untracked  []string
	Deleted    []string
	Added      []string
	Renamed    []string
	HasChanges bool
}

// CommitOptions configures a commit operation.
type CommitOptions struct {
	// Message is the commit message (required)
	Message string

	// AddAll stages all changes before committing
	AddAll bool

	// AllowEmpty permits commits with no changes
	AllowEmpty bool

	// Author overrides the commit author (format: "Name <email>")
	Author string
}

// WorktreeInfo describes a linked worktree.
type WorktreeInfo struct {
	// Name is the sanitized worktree name under .git/worktrees
	Name string

	// Path is the absolute checkout path
	Path string

	// Branch is the branch checked out in the worktree
	Branch string

	// CreatedAt is when the worktree was added (zero for listed worktrees)
	CreatedAt time.Time
}
