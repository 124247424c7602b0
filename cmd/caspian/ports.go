package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/ports"
	"github.com/caspianhq/caspian/internal/storage"
	"github.com/caspianhq/caspian/internal/types"
)

var portsWatch bool

const portScanInterval = 2 * time.Second

var portsCmd = &cobra.Command{
	Use:   "ports <node>",
	Short: "Show a node's declared and active ports",
	Long: `Show the merged port view for a node: ports declared in the
worktree's ports.json plus listening sockets detected under the node's
agent process tree.

With --watch, the process tree is rescanned periodically and port
add/remove events are streamed until interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, _ := resolveNode(ctx, store, args[0])
		if node.WorktreePath == "" {
			fail("node %s has no worktree", node.DisplayName)
		}

		static := ports.ReadStaticPorts(node.WorktreePath, node.ID)
		if static.Err != "" {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("%s ports.json: %s\n", yellow("!"), static.Err)
		}

		registry := ports.NewRegistry(appBus)
		scanner, scanErr := ports.NewScanner()
		if scanErr != nil {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Println(gray("runtime detection unavailable: " + scanErr.Error()))
		}

		pid := agentPID(ctx, store, node.ID)
		if scanner != nil && pid != 0 {
			if err := scanner.SyncNode(ctx, registry, node.ID, pid); err != nil {
				fail("port scan failed: %v", err)
			}
		}

		merged := ports.Merge(static.Ports, registry.ByNode(node.ID), node.ID)
		printMergedPorts(merged)

		if !portsWatch {
			return
		}
		if scanner == nil {
			fail("--watch needs lsof for runtime detection")
		}

		watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Println("\nWatching for port changes (Ctrl-C to stop)...")
		go rescanPorts(watchCtx, scanner, registry, store, node.ID)

		for e := range registry.Subscribe(watchCtx) {
			if e.NodeID != node.ID {
				continue
			}
			dp, ok := e.Payload.(ports.DynamicPort)
			if !ok {
				continue
			}
			switch e.Kind {
			case events.KindPortAdded:
				fmt.Printf("+ %d (%s, pid %d)\n", dp.Port, dp.ProcessName, dp.PID)
			case events.KindPortRemoved:
				fmt.Printf("- %d\n", dp.Port)
			}
		}
	},
}

// rescanPorts periodically reconciles the registry against the node's
// current agent process tree. The agent PID is re-read each pass so an
// agent started or restarted mid-watch is picked up.
func rescanPorts(ctx context.Context, scanner *ports.Scanner, registry *ports.Registry, store storage.Storage, nodeID string) {
	ticker := time.NewTicker(portScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sess, err := store.GetAgentSession(ctx, nodeID)
		if err != nil {
			continue
		}
		if sess == nil || sess.Status != types.SessionRunning || sess.ProcessID == nil {
			registry.RemoveNode(nodeID)
			continue
		}
		_ = scanner.SyncNode(ctx, registry, nodeID, *sess.ProcessID)
	}
}

// agentPID returns the node's running agent PID, or 0 when none.
func agentPID(ctx context.Context, store storage.Storage, nodeID string) int {
	sess, err := store.GetAgentSession(ctx, nodeID)
	if err != nil || sess == nil {
		return 0
	}
	if sess.Status != types.SessionRunning || sess.ProcessID == nil {
		return 0
	}
	return *sess.ProcessID
}

func printMergedPorts(merged []ports.MergedPort) {
	if len(merged) == 0 {
		fmt.Println("No ports declared or active.")
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for _, mp := range merged {
		label := ""
		if mp.Label != nil {
			label = *mp.Label
		}
		state := gray("declared")
		if mp.IsActive {
			proc := ""
			if mp.ProcessName != nil {
				proc = *mp.ProcessName
			}
			state = green("active")
			if proc != "" {
				state += gray(fmt.Sprintf(" (%s)", proc))
			}
		}
		fmt.Printf("%-6d %-20s %s\n", mp.Port, label, state)
	}
}

func init() {
	portsCmd.Flags().BoolVar(&portsWatch, "watch", false, "Rescan and stream port changes until interrupted")
	rootCmd.AddCommand(portsCmd)
}
