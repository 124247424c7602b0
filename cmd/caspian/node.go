package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/ai"
	"github.com/caspianhq/caspian/internal/audit"
	"github.com/caspianhq/caspian/internal/git"
	"github.com/caspianhq/caspian/internal/manifest"
	"github.com/caspianhq/caspian/internal/storage"
	"github.com/caspianhq/caspian/internal/types"
)

var (
	nodeRepo        string
	nodeGoal        string
	nodeGroundRules []string
	commitMessage   string
	closeReason     string
	removeKeepFiles bool
	historyLimit    int
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage worktree nodes",
	Long: `Manage nodes: isolated git worktrees, each on its own branch,
with a manifest recording the node's goal and lifecycle.`,
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a node with a fresh worktree",
	Long: `Create a node in a repository. A branch and worktree are created
under the repository's .caspian/worktrees directory, and a manifest is
written describing the node's goal.

Example:
  caspian node create --repo myproject --goal "Add rate limiting to the API"`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		if nodeRepo == "" {
			fail("--repo is required")
		}
		if strings.TrimSpace(nodeGoal) == "" {
			fail("--goal is required")
		}

		repo := resolveRepo(ctx, store, nodeRepo)

		g, err := git.NewGit(ctx)
		if err != nil {
			fail("%v", err)
		}

		branches, err := g.ListBranches(ctx, repo.Path)
		if err != nil {
			fail("%v", err)
		}
		name := git.GenerateNodeName(branches)

		node := &types.Node{
			ID:              uuid.NewString(),
			RepoID:          repo.ID,
			InternalBranch:  name,
			DisplayName:     name,
			ParentBranch:    repo.MainBranch,
			State:           types.NodeStateInProgress,
			ExecutionStatus: types.ExecutionIdle,
			WorktreeStatus:  types.WorktreeCreating,
			Goal:            nodeGoal,
		}
		if err := store.CreateNode(ctx, node); err != nil {
			fail("%v", err)
		}

		info, err := g.AddWorktree(ctx, repo.Path, name, repo.MainBranch)
		if err != nil {
			_ = store.UpdateWorktree(ctx, node.ID, types.WorktreeFailed, "")
			fail("failed to create worktree: %v", err)
		}
		if err := store.UpdateWorktree(ctx, node.ID, types.WorktreeReady, info.Path); err != nil {
			fail("%v", err)
		}

		m := manifest.New(name, repo.MainBranch, nodeGoal)
		for _, rule := range nodeGroundRules {
			m.AddGroundRule(rule)
		}
		if cmdLine := manifest.DetectTestCommand(repo.Path); cmdLine != "" {
			m.Tests.Command = cmdLine
		}
		if err := manifest.Save(repo.Path, m); err != nil {
			fail("failed to write manifest: %v", err)
		}

		recordAudit(repo.Path, audit.NewEntry(audit.EventBranchCreated, name).
			WithActor(flagActor).WithValues("", name))
		recordAudit(repo.Path, audit.NewEntry(audit.EventNodeCreated, name).
			WithActor(flagActor).WithValues("", nodeGoal))
		for _, rule := range nodeGroundRules {
			recordAudit(repo.Path, audit.NewEntry(audit.EventGroundRuleAdded, name).
				WithActor(flagActor).WithValues("", rule))
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Created node %s\n", green("✓"), cyan(name))
		fmt.Printf("  Branch: %s (from %s)\n", name, repo.MainBranch)
		fmt.Printf("  Worktree: %s\n", info.Path)
		fmt.Printf("  Goal: %s\n", nodeGoal)
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes, most recently active first",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		repos, err := store.ListRepositories(ctx)
		if err != nil {
			fail("%v", err)
		}
		if nodeRepo != "" {
			repos = []*types.Repository{resolveRepo(ctx, store, nodeRepo)}
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		total := 0
		for _, repo := range repos {
			nodes, err := store.ListNodes(ctx, repo.ID)
			if err != nil {
				fail("%v", err)
			}
			if len(nodes) == 0 {
				continue
			}
			fmt.Printf("%s:\n", repo.Name)
			for _, node := range nodes {
				fmt.Printf("  %s %-24s %-18s %s\n",
					stateMarker(node.State), node.DisplayName,
					string(node.State), executionLabel(node.ExecutionStatus))
				if node.Goal != "" {
					fmt.Printf("    %s\n", gray(node.Goal))
				}
				total++
			}
		}
		if total == 0 {
			fmt.Println("No nodes. Create one with 'caspian node create'.")
		}
	},
}

var nodeCloseCmd = &cobra.Command{
	Use:   "close <node>",
	Short: "Close a node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionNode(args[0], types.NodeStateClosed)
	},
}

var nodeReviewCmd = &cobra.Command{
	Use:   "review <node>",
	Short: "Mark a node ready for review",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionNode(args[0], types.NodeStateReadyForReview)
	},
}

var nodeApproveCmd = &cobra.Command{
	Use:   "approve <node>",
	Short: "Approve a node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionNode(args[0], types.NodeStateApproved)
	},
}

var nodeReopenCmd = &cobra.Command{
	Use:   "reopen <node>",
	Short: "Reopen a closed node",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitionNode(args[0], types.NodeStateInProgress)
	},
}

var nodeRemoveCmd = &cobra.Command{
	Use:   "remove <node>",
	Short: "Delete a node, its worktree, and its manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, repo := resolveNode(ctx, store, args[0])

		if !removeKeepFiles {
			g, err := git.NewGit(ctx)
			if err != nil {
				fail("%v", err)
			}
			if err := store.UpdateWorktree(ctx, node.ID, types.WorktreeRemoving, node.WorktreePath); err != nil {
				fail("%v", err)
			}
			if err := g.RemoveWorktree(ctx, repo.Path, node.InternalBranch); err != nil {
				fail("failed to remove worktree: %v", err)
			}
			if err := g.DeleteBranch(ctx, repo.Path, node.InternalBranch); err != nil {
				// The branch may hold unmerged work; leave it behind.
				fmt.Fprintf(os.Stderr, "warning: branch %s not deleted: %v\n", node.InternalBranch, err)
			}
		}

		if err := manifest.Delete(repo.Path, node.InternalBranch); err != nil {
			fail("%v", err)
		}
		if err := audit.Delete(repo.Path, node.InternalBranch); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit log not removed: %v\n", err)
		}
		if err := store.DeleteNode(ctx, node.ID); err != nil {
			fail("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed node %s\n", green("✓"), node.DisplayName)
	},
}

var nodeCommitCmd = &cobra.Command{
	Use:   "commit <node>",
	Short: "Checkpoint a node's worktree",
	Long: `Commit all changes in a node's worktree.

Without --message, a commit message is generated from the diff using the
Anthropic API when ANTHROPIC_API_KEY is set, falling back to a plain
checkpoint message otherwise.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, _ := resolveNode(ctx, store, args[0])
		if node.WorktreeStatus != types.WorktreeReady || node.WorktreePath == "" {
			fail("node %s has no ready worktree", node.DisplayName)
		}

		g, err := git.NewGit(ctx)
		if err != nil {
			fail("%v", err)
		}

		status, err := g.Status(ctx, node.WorktreePath)
		if err != nil {
			fail("%v", err)
		}
		if !status.HasChanges {
			fmt.Println("Nothing to commit.")
			return
		}

		message := commitMessage
		if message == "" {
			message = buildCommitMessage(ctx, g, node, status)
		}

		hash, err := g.Commit(ctx, node.WorktreePath, git.CommitOptions{
			Message: message,
			AddAll:  true,
		})
		if err != nil {
			fail("%v", err)
		}
		if err := store.TouchNode(ctx, node.ID); err != nil {
			fail("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		subject, _, _ := strings.Cut(message, "\n")
		fmt.Printf("%s Committed %s: %s\n", green("✓"), hash[:min(8, len(hash))], subject)
	},
}

var nodeHistoryCmd = &cobra.Command{
	Use:   "history [node]",
	Short: "Show a node's audit log",
	Long: `Show the audit trail for a node: creation, state transitions,
ground rule changes. Without a node argument, shows recent activity
across every node in a repository (requires --repo).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		var entries []audit.Entry
		var err error
		if len(args) == 1 {
			node, repo := resolveNode(ctx, store, args[0])
			entries, err = audit.Read(repo.Path, node.InternalBranch)
		} else {
			if nodeRepo == "" {
				fail("a node argument or --repo is required")
			}
			repo := resolveRepo(ctx, store, nodeRepo)
			entries, err = audit.RecentActivity(repo.Path, historyLimit)
		}
		if err != nil {
			fail("%v", err)
		}
		if len(entries) == 0 {
			fmt.Println("No activity recorded.")
			return
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		for _, e := range entries {
			fmt.Printf("%s  %-18s %s %s\n",
				gray(e.Timestamp.Local().Format("2006-01-02 15:04")),
				string(e.EventType), cyan(e.NodeID), gray(e.Actor))
			if e.NewValue != "" {
				if e.PreviousValue != "" {
					fmt.Printf("    %s -> %s\n", e.PreviousValue, e.NewValue)
				} else {
					fmt.Printf("    %s\n", e.NewValue)
				}
			}
			if e.Reason != "" {
				fmt.Printf("    %s\n", gray(e.Reason))
			}
		}
	},
}

var nodePRCmd = &cobra.Command{
	Use:   "pr <node>",
	Short: "Show the pull request for a node's branch",
	Long: `Look up the pull request for a node's branch via the GitHub CLI.
Requires gh to be installed and authenticated.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, _ := resolveNode(ctx, store, args[0])
		if node.WorktreeStatus != types.WorktreeReady || node.WorktreePath == "" {
			fail("node %s has no ready worktree", node.DisplayName)
		}

		gh, err := git.NewGH()
		if err != nil {
			fail("%v", err)
		}
		status, err := gh.PRForBranch(ctx, node.WorktreePath, node.InternalBranch)
		if err != nil {
			fail("%v", err)
		}
		if status == nil {
			fmt.Printf("No pull request for branch %s.\n", node.InternalBranch)
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("#%d %s\n", status.Number, status.Title)
		fmt.Printf("  State: %s", prStateLabel(status.State))
		if status.MergeStateStatus != "" {
			fmt.Printf(" (%s)", strings.ToLower(status.MergeStateStatus))
		}
		fmt.Println()
		if status.Mergeable == "CONFLICTING" {
			fmt.Printf("  %s\n", color.New(color.FgRed).Sprint("Has merge conflicts"))
		}
		fmt.Printf("  URL: %s\n", cyan(status.URL))
	},
}

func prStateLabel(state string) string {
	switch state {
	case "OPEN":
		return color.New(color.FgGreen).Sprint("open")
	case "MERGED":
		return color.New(color.FgMagenta).Sprint("merged")
	case "CLOSED":
		return color.New(color.FgRed).Sprint("closed")
	default:
		return strings.ToLower(state)
	}
}

// buildCommitMessage generates a message from the diff, or falls back
// to a timestamped checkpoint when no API key is available.
func buildCommitMessage(ctx context.Context, g *git.Git, node *types.Node, status *git.Status) string {
	fallback := fmt.Sprintf("checkpoint: %s (%s)",
		node.DisplayName, time.Now().UTC().Format("2006-01-02 15:04"))

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fallback
	}

	diff, err := g.Diff(ctx, node.WorktreePath, false)
	if err != nil {
		return fallback
	}

	var changed []string
	changed = append(changed, status.Modified...)
	changed = append(changed, status.Added...)
	changed = append(changed, status.Untracked...)
	changed = append(changed, status.Deleted...)

	client := anthropic.NewClient()
	gen := ai.NewMessageGenerator(&client, loadConfig().AgentModel)
	resp, err := gen.GenerateCommitMessage(ctx, ai.CommitMessageRequest{
		NodeID:       node.DisplayName,
		Goal:         node.Goal,
		ChangedFiles: changed,
		Diff:         diff,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: message generation failed: %v\n", err)
		return fallback
	}
	return resp.Message()
}

// transitionNode moves a node to a new lifecycle state, keeping the
// manifest in sync with the database.
func transitionNode(arg string, state types.NodeState) {
	ctx := context.Background()
	cfg := loadConfig()
	store := openStorage(ctx, cfg)

	node, repo := resolveNode(ctx, store, arg)
	if err := applyTransition(ctx, store, repo.Path, node, state, flagActor, closeReason); err != nil {
		fail("%v", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Node %s is now %s\n", green("✓"), node.DisplayName, state)
}

// applyTransition updates a node's state in the database and its
// manifest. The manifest is read first so an unreadable one cannot
// leave the two records disagreeing; a missing manifest is tolerated.
func applyTransition(ctx context.Context, store storage.Storage, repoPath string, node *types.Node, state types.NodeState, actor, reason string) error {
	m, err := manifest.Load(repoPath, node.InternalBranch)
	if err != nil {
		return err
	}

	if err := store.UpdateNodeState(ctx, node.ID, state); err != nil {
		return err
	}

	if m != nil {
		m.Transition(state, actor)
		if state == types.NodeStateClosed && reason != "" {
			m.Status.CloseReason = reason
		}
		if err := manifest.Save(repoPath, m); err != nil {
			return err
		}
	}

	recordAudit(repoPath, audit.NewEntry(audit.EventStateTransition, node.InternalBranch).
		WithActor(actor).
		WithValues(string(node.State), string(state)).
		WithReason(reason))
	return nil
}

// recordAudit appends to a node's audit log. A failed append is
// reported but never blocks the command that caused it.
func recordAudit(repoPath string, e audit.Entry) {
	if err := audit.Append(repoPath, e); err != nil {
		fmt.Fprintf(os.Stderr, "warning: audit entry not recorded: %v\n", err)
	}
}

// resolveNode finds a node by ID, internal branch, or display name,
// returning it with its repository.
func resolveNode(ctx context.Context, store storage.Storage, arg string) (*types.Node, *types.Repository) {
	node, err := store.GetNode(ctx, arg)
	if err != nil {
		fail("%v", err)
	}
	if node != nil {
		repo, err := store.GetRepository(ctx, node.RepoID)
		if err != nil {
			fail("%v", err)
		}
		if repo == nil {
			fail("repository %s not found for node %s", node.RepoID, arg)
		}
		return node, repo
	}

	repos, err := store.ListRepositories(ctx)
	if err != nil {
		fail("%v", err)
	}
	for _, repo := range repos {
		nodes, err := store.ListNodes(ctx, repo.ID)
		if err != nil {
			fail("%v", err)
		}
		for _, n := range nodes {
			if n.InternalBranch == arg || n.DisplayName == arg {
				return n, repo
			}
		}
	}

	fail("node not found: %s", arg)
	return nil, nil
}

func stateMarker(state types.NodeState) string {
	switch state {
	case types.NodeStateInProgress:
		return color.New(color.FgYellow).Sprint("●")
	case types.NodeStateReadyForReview:
		return color.New(color.FgCyan).Sprint("●")
	case types.NodeStateApproved:
		return color.New(color.FgGreen).Sprint("●")
	default:
		return color.New(color.FgHiBlack).Sprint("●")
	}
}

func executionLabel(status types.ExecutionStatus) string {
	switch status {
	case types.ExecutionRunning:
		return color.New(color.FgMagenta).Sprint("agent running")
	case types.ExecutionNeedsInput:
		return color.New(color.FgRed).Sprint("needs input")
	default:
		return ""
	}
}

func init() {
	nodeCreateCmd.Flags().StringVar(&nodeRepo, "repo", "", "Repository ID, path, or name (required)")
	nodeCreateCmd.Flags().StringVar(&nodeGoal, "goal", "", "What this node is for (required)")
	nodeCreateCmd.Flags().StringSliceVar(&nodeGroundRules, "ground-rule", nil, "Constraint the work must respect (repeatable)")
	nodeListCmd.Flags().StringVar(&nodeRepo, "repo", "", "Limit to one repository")
	nodeCloseCmd.Flags().StringVar(&closeReason, "reason", "", "Why the node is being closed")
	nodeCommitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message (default: generated)")
	nodeRemoveCmd.Flags().BoolVar(&removeKeepFiles, "keep-files", false, "Keep the worktree and branch on disk")
	nodeHistoryCmd.Flags().StringVar(&nodeRepo, "repo", "", "Repository for cross-node activity")
	nodeHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum activity entries to show")

	nodeCmd.AddCommand(nodeCreateCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeCloseCmd)
	nodeCmd.AddCommand(nodeReviewCmd)
	nodeCmd.AddCommand(nodeApproveCmd)
	nodeCmd.AddCommand(nodeReopenCmd)
	nodeCmd.AddCommand(nodeRemoveCmd)
	nodeCmd.AddCommand(nodeCommitCmd)
	nodeCmd.AddCommand(nodeHistoryCmd)
	nodeCmd.AddCommand(nodePRCmd)
	rootCmd.AddCommand(nodeCmd)
}
