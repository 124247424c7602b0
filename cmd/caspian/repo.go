package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/git"
	"github.com/caspianhq/caspian/internal/health"
	"github.com/caspianhq/caspian/internal/storage"
	"github.com/caspianhq/caspian/internal/types"
)

var repoName string

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage tracked repositories",
	Long: `Manage the repositories Caspian tracks.

A repository must be a git repository with at least one commit. Active
repositories (those with a tab position) are swept by the health monitor
and appear in listings by tab order.`,
}

var repoAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Track an existing git repository",
	Long: `Track an existing git repository.

The repository is added in active state, appended after the current tabs.

Example:
  caspian repo add ~/code/myproject
  caspian repo add ~/code/myproject --name frontend`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		path, err := filepath.Abs(args[0])
		if err != nil {
			fail("invalid path: %v", err)
		}

		g, err := git.NewGit(ctx)
		if err != nil {
			fail("%v", err)
		}
		if !g.IsRepo(ctx, path) {
			fail("%s is not a git repository", path)
		}
		if !g.HasCommits(ctx, path) {
			fail("%s has no commits yet; make an initial commit first", path)
		}

		mainBranch, err := g.MainBranch(ctx, path)
		if err != nil {
			fail("failed to determine main branch: %v", err)
		}

		name := repoName
		if name == "" {
			name = filepath.Base(path)
		}

		repo := &types.Repository{
			ID:         uuid.NewString(),
			Name:       name,
			Path:       path,
			MainBranch: mainBranch,
			TabOrder:   nextTabOrder(ctx, store),
		}
		if err := store.AddRepository(ctx, repo); err != nil {
			fail("%v", err)
		}
		notifyRepositoriesChanged(repo.ID)

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Added repository %s\n", green("✓"), cyan(name))
		fmt.Printf("  ID: %s\n", repo.ID)
		fmt.Printf("  Path: %s\n", path)
		fmt.Printf("  Main branch: %s\n", mainBranch)
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories with health",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		repos, err := store.ListRepositories(ctx)
		if err != nil {
			fail("%v", err)
		}
		if len(repos) == 0 {
			fmt.Println("No repositories tracked. Add one with 'caspian repo add <path>'.")
			return
		}

		cache := openHealthCache(ctx, store)

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		for _, repo := range repos {
			check, err := cache.Get(ctx, repo.ID)
			if err != nil {
				fail("%v", err)
			}

			marker := green("●")
			if !check.Healthy {
				marker = red("●")
			}

			state := gray("inactive")
			if repo.Active() {
				state = fmt.Sprintf("tab %d", *repo.TabOrder)
			}

			fmt.Printf("%s %-20s %-10s %s\n", marker, repo.Name, state, gray(repo.Path))
			if !check.Healthy {
				fmt.Printf("  %s path missing\n", red("!"))
			}
		}
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <repo>",
	Short: "Stop tracking a repository",
	Long: `Stop tracking a repository. The working copy on disk is untouched;
only Caspian's record of it (including its nodes) is removed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		repo := resolveRepo(ctx, store, args[0])
		if err := store.RemoveRepository(ctx, repo.ID); err != nil {
			fail("%v", err)
		}
		notifyRepositoriesChanged(repo.ID)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Removed repository %s\n", green("✓"), repo.Name)
	},
}

var repoInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Initialize a new git repository and track it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		path, err := filepath.Abs(args[0])
		if err != nil {
			fail("invalid path: %v", err)
		}

		g, err := git.NewGit(ctx)
		if err != nil {
			fail("%v", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			fail("%v", err)
		}
		if err := g.Init(ctx, path); err != nil {
			fail("%v", err)
		}

		// Seed an initial commit so branches can be created immediately.
		readme := filepath.Join(path, "README.md")
		if _, err := os.Stat(readme); os.IsNotExist(err) {
			content := fmt.Sprintf("# %s\n", filepath.Base(path))
			if err := os.WriteFile(readme, []byte(content), 0o644); err != nil {
				fail("%v", err)
			}
		}
		if _, err := g.Commit(ctx, path, git.CommitOptions{
			Message: "initial commit",
			AddAll:  true,
		}); err != nil {
			fail("%v", err)
		}

		name := repoName
		if name == "" {
			name = filepath.Base(path)
		}
		repo := &types.Repository{
			ID:         uuid.NewString(),
			Name:       name,
			Path:       path,
			MainBranch: "main",
			TabOrder:   nextTabOrder(ctx, store),
		}
		if err := store.AddRepository(ctx, repo); err != nil {
			fail("%v", err)
		}
		notifyRepositoriesChanged(repo.ID)

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Initialized repository %s at %s\n", green("✓"), cyan(name), path)
	},
}

var repoCloneCmd = &cobra.Command{
	Use:   "clone <url> [dest]",
	Short: "Clone a repository and track it",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		url := args[0]
		dest := ""
		if len(args) > 1 {
			dest = args[1]
		} else {
			dest = deriveCloneDest(url)
		}
		path, err := filepath.Abs(dest)
		if err != nil {
			fail("invalid destination: %v", err)
		}

		g, err := git.NewGit(ctx)
		if err != nil {
			fail("%v", err)
		}

		fmt.Printf("Cloning %s...\n", url)
		if err := g.Clone(ctx, url, path); err != nil {
			fail("%v", err)
		}

		mainBranch, err := g.MainBranch(ctx, path)
		if err != nil {
			fail("failed to determine main branch: %v", err)
		}

		name := repoName
		if name == "" {
			name = filepath.Base(path)
		}
		repo := &types.Repository{
			ID:         uuid.NewString(),
			Name:       name,
			Path:       path,
			MainBranch: mainBranch,
			TabOrder:   nextTabOrder(ctx, store),
		}
		if err := store.AddRepository(ctx, repo); err != nil {
			fail("%v", err)
		}
		notifyRepositoriesChanged(repo.ID)

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Cloned %s into %s\n", green("✓"), cyan(name), path)
	},
}

var repoActivateCmd = &cobra.Command{
	Use:   "activate <repo>",
	Short: "Give a repository a tab position",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		repo := resolveRepo(ctx, store, args[0])
		if repo.Active() {
			fmt.Printf("Repository %s is already active (tab %d)\n", repo.Name, *repo.TabOrder)
			return
		}
		if err := store.SetTabOrder(ctx, repo.ID, nextTabOrder(ctx, store)); err != nil {
			fail("%v", err)
		}
		if err := store.UpdateLastAccessed(ctx, repo.ID); err != nil {
			fail("%v", err)
		}
		notifyRepositoriesChanged(repo.ID)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Activated repository %s\n", green("✓"), repo.Name)
	},
}

var repoDeactivateCmd = &cobra.Command{
	Use:   "deactivate <repo>",
	Short: "Remove a repository's tab position",
	Long: `Remove a repository's tab position. Inactive repositories keep their
nodes and history but are skipped by the health sweep.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		repo := resolveRepo(ctx, store, args[0])
		if err := store.SetTabOrder(ctx, repo.ID, nil); err != nil {
			fail("%v", err)
		}
		notifyRepositoriesChanged(repo.ID)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deactivated repository %s\n", green("✓"), repo.Name)
	},
}

// resolveRepo finds a repository by ID, path, or name.
func resolveRepo(ctx context.Context, store storage.Storage, arg string) *types.Repository {
	repo, err := store.GetRepository(ctx, arg)
	if err != nil {
		fail("%v", err)
	}
	if repo != nil {
		return repo
	}

	if abs, err := filepath.Abs(arg); err == nil {
		repo, err = store.GetRepositoryByPath(ctx, abs)
		if err != nil {
			fail("%v", err)
		}
		if repo != nil {
			return repo
		}
	}

	repos, err := store.ListRepositories(ctx)
	if err != nil {
		fail("%v", err)
	}
	for _, r := range repos {
		if r.Name == arg {
			return r
		}
	}

	fail("repository not found: %s", arg)
	return nil
}

// nextTabOrder returns a tab position after the current last tab.
func nextTabOrder(ctx context.Context, store storage.Storage) *int {
	active, err := store.ListActiveRepositories(ctx)
	if err != nil {
		fail("%v", err)
	}
	next := 0
	for _, repo := range active {
		if repo.TabOrder != nil && *repo.TabOrder >= next {
			next = *repo.TabOrder + 1
		}
	}
	return &next
}

// deriveCloneDest derives a directory name from a clone URL.
func deriveCloneDest(url string) string {
	base := filepath.Base(url)
	if ext := filepath.Ext(base); ext == ".git" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." || base == "/" {
		base = "repository"
	}
	return base
}

// healthSummary formats a check for display.
func healthSummary(check health.Check) string {
	if check.Healthy {
		return color.New(color.FgGreen).Sprint("healthy")
	}
	return color.New(color.FgRed).Sprintf("unhealthy (%s)", check.Reason)
}

func init() {
	repoAddCmd.Flags().StringVar(&repoName, "name", "", "Display name (default: directory name)")
	repoInitCmd.Flags().StringVar(&repoName, "name", "", "Display name (default: directory name)")
	repoCloneCmd.Flags().StringVar(&repoName, "name", "", "Display name (default: directory name)")

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoInitCmd)
	repoCmd.AddCommand(repoCloneCmd)
	repoCmd.AddCommand(repoActivateCmd)
	repoCmd.AddCommand(repoDeactivateCmd)
	rootCmd.AddCommand(repoCmd)
}
