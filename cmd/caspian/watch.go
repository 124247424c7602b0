package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/types"
	"github.com/caspianhq/caspian/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch node worktrees for file changes",
	Long: `Watch every ready worktree for file changes and print them as they
happen. Repository health is re-checked when repositories change, at a
bounded sweep rate. Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		// Brings up the health invalidator alongside the cache, so
		// repository change events re-sweep while we run.
		openHealthCache(ctx, store)

		mgr := watcher.NewManager(appBus, time.Duration(cfg.WatchDebounceMS)*time.Millisecond)
		defer mgr.StopAll()

		// Names for event display, keyed by node ID.
		names := make(map[string]string)

		repos, err := store.ListActiveRepositories(ctx)
		if err != nil {
			fail("%v", err)
		}
		watching := 0
		for _, repo := range repos {
			nodes, err := store.ListNodes(ctx, repo.ID)
			if err != nil {
				fail("%v", err)
			}
			for _, node := range nodes {
				if node.WorktreeStatus != types.WorktreeReady || node.WorktreePath == "" {
					continue
				}
				if node.State == types.NodeStateClosed {
					continue
				}
				if err := mgr.Start(node.ID, node.WorktreePath); err != nil {
					fail("failed to watch %s: %v", node.DisplayName, err)
				}
				names[node.ID] = fmt.Sprintf("%s/%s", repo.Name, node.DisplayName)
				watching++
			}
		}
		if watching == 0 {
			fmt.Println("No ready worktrees to watch.")
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("Watching %d worktrees (Ctrl-C to stop)...\n", watching)

		for e := range appBus.Subscribe(ctx) {
			if e.Kind != events.KindFilesChanged {
				continue
			}
			p, ok := e.Payload.(events.FilesChangedPayload)
			if !ok {
				continue
			}
			name := names[e.NodeID]
			if name == "" {
				name = e.NodeID
			}
			stamp := gray(time.Now().Format("15:04:05"))
			fmt.Printf("%s %s: %s\n", stamp, cyan(name), strings.Join(p.Paths, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
