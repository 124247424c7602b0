package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/config"
	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/health"
	"github.com/caspianhq/caspian/internal/storage"
	"github.com/caspianhq/caspian/internal/watcher"
)

var (
	flagDB    string
	flagActor string
)

// Process-wide composition shared by every command in this invocation.
// One-shot commands use it once; the shell and watch reuse it across
// dispatches, so a repo mutation in one command reaches the health
// invalidator serving the next.
var (
	appBus = events.NewBus()

	storeOnce sync.Once
	appStore  storage.Storage
	storeErr  error

	cacheOnce sync.Once
	appCache  *health.Cache
	cacheErr  error
)

var rootCmd = &cobra.Command{
	Use:   "caspian",
	Short: "Manage git worktree nodes across repositories",
	Long: `Caspian manages isolated git worktrees ("nodes") across your repositories.

Each node is a branch checked out in its own worktree with a manifest
describing its goal. Coding agents run inside nodes, and Caspian tracks
their sessions, output, dev-server ports, and repository health.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Path to the Caspian database (default: per-user data directory)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "human", "Actor recorded on state transitions")
}

// Execute runs the CLI.
func Execute() {
	err := rootCmd.Execute()
	if appStore != nil {
		appStore.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// shellFailure carries a fail() message out of a command running inside
// the interactive shell, where exiting the process would kill the shell.
type shellFailure struct{ msg string }

var inShell bool

// fail prints an error to stderr and exits non-zero. Inside the shell it
// unwinds to the prompt instead.
func fail(format string, args ...any) {
	if inShell {
		panic(shellFailure{fmt.Sprintf(format, args...)})
	}
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig resolves the backend configuration, with the --db flag
// taking precedence over the environment.
func loadConfig() config.BackendConfig {
	cfg, err := config.BackendConfigFromEnv()
	if err != nil {
		fail("%v", err)
	}
	if flagDB != "" {
		cfg.DatabasePath = flagDB
	}
	return cfg
}

// openStorage returns the process-wide database handle, opening it on
// first use. Closed by Execute when the process finishes.
func openStorage(ctx context.Context, cfg config.BackendConfig) storage.Storage {
	storeOnce.Do(func() {
		appStore, storeErr = storage.NewStorage(ctx, &storage.Config{Path: cfg.DatabasePath})
	})
	if storeErr != nil {
		fail("failed to open database: %v", storeErr)
	}
	return appStore
}

// openHealthCache returns the process-wide health cache, sweeping it on
// first use and starting the invalidator that re-sweeps when repository
// change events land on the bus.
func openHealthCache(ctx context.Context, store storage.Storage) *health.Cache {
	cacheOnce.Do(func() {
		appCache = health.NewCache(store)
		if cacheErr = appCache.Init(ctx); cacheErr != nil {
			return
		}
		go watcher.RunHealthInvalidator(context.Background(), appBus, appCache,
			loadConfig().HealthSweepsPerSecond)
	})
	if cacheErr != nil {
		fail("failed to initialize health cache: %v", cacheErr)
	}
	return appCache
}

// notifyRepositoriesChanged publishes a repository-set change so the
// health invalidator re-sweeps.
func notifyRepositoriesChanged(repoID string) {
	appBus.Publish(events.Event{
		Kind:   events.KindRepositoriesChanged,
		RepoID: repoID,
	})
}
