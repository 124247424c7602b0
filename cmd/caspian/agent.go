package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/events"
	"github.com/caspianhq/caspian/internal/manifest"
	"github.com/caspianhq/caspian/internal/session"
	"github.com/caspianhq/caspian/internal/types"
)

var (
	agentGoal    string
	agentContext string
	agentResume  bool
	agentQuiet   bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agents against node worktrees",
}

var agentStartCmd = &cobra.Command{
	Use:   "start <node>",
	Short: "Start an agent in a node's worktree",
	Long: `Start an agent working in a node's worktree. The node's goal from
its manifest is used as the prompt unless --goal overrides it. Agent
output is streamed to the terminal until the agent exits or the command
is interrupted; interrupting stops the agent.

Example:
  caspian agent start eagle-x7k2p
  caspian agent start eagle-x7k2p --resume`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, repo := resolveNode(ctx, store, args[0])
		if node.WorktreeStatus != types.WorktreeReady || node.WorktreePath == "" {
			fail("node %s has no ready worktree", node.DisplayName)
		}

		m, err := manifest.Load(repo.Path, node.InternalBranch)
		if err != nil {
			fail("%v", err)
		}

		goal := agentGoal
		if goal == "" {
			goal = node.Goal
		}
		if goal == "" && m != nil {
			goal = m.Goal
		}
		if goal == "" {
			fail("node %s has no goal; pass one with --goal", node.DisplayName)
		}

		extra := agentContext
		if m != nil && len(m.GroundRules) > 0 {
			rules := "Ground rules:\n- " + strings.Join(m.GroundRules, "\n- ")
			if extra == "" {
				extra = rules
			} else {
				extra = extra + "\n\n" + rules
			}
		}

		resumeID := ""
		if agentResume {
			prev, err := store.GetAgentSession(ctx, node.ID)
			if err != nil {
				fail("%v", err)
			}
			if prev == nil || prev.ResumeSessionID == "" {
				fail("no previous session to resume for node %s", node.DisplayName)
			}
			resumeID = prev.ResumeSessionID
		}

		mgr := session.NewManager(store, appBus, cfg.AgentCommand)

		// Subscribe before spawning so no output is missed.
		stream := appBus.Subscribe(ctx)

		sess, err := mgr.Spawn(ctx, session.SpawnConfig{
			NodeID:          node.ID,
			RepoID:          repo.ID,
			WorktreePath:    node.WorktreePath,
			Goal:            goal,
			Context:         extra,
			Model:           cfg.AgentModel,
			ResumeSessionID: resumeID,
		})
		if err != nil {
			fail("%v", err)
		}

		if m != nil {
			m.Agent.SessionID = sess.ResumeSessionID
			if cfg.AgentModel != "" {
				m.Agent.Model = cfg.AgentModel
			}
			if err := manifest.Save(repo.Path, m); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to update manifest: %v\n", err)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Agent started for node %s (session %s)\n",
			green("✓"), cyan(node.DisplayName), sess.ID)

		exitCode := streamAgent(ctx, stream, node.ID, sess.ID)

		if ctx.Err() != nil {
			// Interrupted; stop the agent before leaving.
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := mgr.Stop(stopCtx, node.ID); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to stop agent: %v\n", err)
			}
			fmt.Println("\nAgent stopped.")
			return
		}

		if exitCode != 0 {
			fail("agent exited with code %d", exitCode)
		}
		fmt.Printf("%s Agent finished\n", green("✓"))
	},
}

var agentStopCmd = &cobra.Command{
	Use:   "stop <node>",
	Short: "Stop a node's running agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, _ := resolveNode(ctx, store, args[0])
		sess, err := store.GetAgentSession(ctx, node.ID)
		if err != nil {
			fail("%v", err)
		}
		if sess == nil || sess.Status != types.SessionRunning {
			fail("no running agent for node %s", node.DisplayName)
		}
		if sess.ProcessID == nil {
			fail("session %s has no recorded process", sess.ID)
		}

		// The agent was started by another caspian process, so signal the
		// recorded pid directly rather than going through a manager.
		if err := stopProcess(*sess.ProcessID); err != nil {
			fail("failed to stop pid %d: %v", *sess.ProcessID, err)
		}
		if err := store.EndAgentSession(ctx, node.ID, types.SessionStopped, time.Now().UTC()); err != nil {
			fail("%v", err)
		}
		if err := store.UpdateExecutionStatus(ctx, node.ID, types.ExecutionIdle); err != nil {
			fail("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Stopped agent for node %s\n", green("✓"), node.DisplayName)
	},
}

var agentStatusCmd = &cobra.Command{
	Use:   "status <node>",
	Short: "Show a node's agent session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, _ := resolveNode(ctx, store, args[0])
		sess, err := store.GetAgentSession(ctx, node.ID)
		if err != nil {
			fail("%v", err)
		}
		if sess == nil {
			fmt.Printf("No agent session for node %s\n", node.DisplayName)
			return
		}

		fmt.Printf("Session: %s\n", sess.ID)
		fmt.Printf("Status: %s\n", sessionStatusLabel(sess.Status))
		fmt.Printf("Started: %s\n", sess.StartedAt.Local().Format(time.RFC822))
		if sess.EndedAt != nil {
			fmt.Printf("Ended: %s\n", sess.EndedAt.Local().Format(time.RFC822))
		}
		if sess.ProcessID != nil {
			fmt.Printf("PID: %d\n", *sess.ProcessID)
		}
		if sess.ResumeSessionID != "" {
			fmt.Printf("Resumable: yes (%s)\n", sess.ResumeSessionID)
		}
	},
}

var agentLogCmd = &cobra.Command{
	Use:   "log <node>",
	Short: "Show a node's agent messages",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		store := openStorage(ctx, cfg)

		node, repo := resolveNode(ctx, store, args[0])
		msgs, err := store.ListMessages(ctx, repo.ID, node.ID, cfg.MessageHistoryLimit)
		if err != nil {
			fail("%v", err)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		for _, msg := range msgs {
			stamp := gray(msg.CreatedAt.Local().Format("15:04:05"))
			sender := string(msg.SenderType)
			content := msg.Content
			if msg.MessageType == types.MessageError {
				content = red(content)
			}
			fmt.Printf("%s %-6s %s\n", stamp, sender, content)
		}

		if err := store.MarkNodeViewed(ctx, node.ID); err != nil {
			fail("%v", err)
		}
	},
}

// streamAgent prints bus events for one node until the agent exits or
// ctx is canceled, returning the agent's exit code.
func streamAgent(ctx context.Context, stream <-chan events.Event, nodeID, sessionID string) int {
	red := color.New(color.FgRed).SprintFunc()

	for {
		select {
		case <-ctx.Done():
			return 0
		case e, ok := <-stream:
			if !ok {
				return 0
			}
			if e.NodeID != nodeID {
				continue
			}
			switch e.Kind {
			case events.KindAgentOutput:
				if agentQuiet {
					continue
				}
				p, ok := e.Payload.(events.AgentOutputPayload)
				if !ok {
					continue
				}
				if p.Stream == "stderr" {
					fmt.Fprintln(os.Stderr, red(p.Line))
				} else {
					fmt.Println(p.Line)
				}
			case events.KindAgentExited:
				p, ok := e.Payload.(events.AgentExitedPayload)
				if !ok || p.SessionID != sessionID {
					continue
				}
				if p.Err != "" {
					fmt.Fprintf(os.Stderr, "%s %s\n", red("agent error:"), p.Err)
				}
				return p.ExitCode
			}
		}
	}
}

// stopProcess sends SIGTERM to a pid, tolerating already-dead processes.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	return nil
}

func sessionStatusLabel(status types.SessionStatus) string {
	switch status {
	case types.SessionRunning:
		return color.New(color.FgMagenta).Sprint("running")
	case types.SessionCompleted:
		return color.New(color.FgGreen).Sprint("completed")
	case types.SessionFailed:
		return color.New(color.FgRed).Sprint("failed")
	case types.SessionStopped:
		return color.New(color.FgYellow).Sprint("stopped")
	default:
		return string(status)
	}
}

func init() {
	agentStartCmd.Flags().StringVar(&agentGoal, "goal", "", "Prompt override (default: the node's goal)")
	agentStartCmd.Flags().StringVar(&agentContext, "context", "", "Extra context appended to the prompt")
	agentStartCmd.Flags().BoolVar(&agentResume, "resume", false, "Resume the node's previous agent conversation")
	agentStartCmd.Flags().BoolVarP(&agentQuiet, "quiet", "q", false, "Suppress streamed agent output")

	agentCmd.AddCommand(agentStartCmd)
	agentCmd.AddCommand(agentStopCmd)
	agentCmd.AddCommand(agentStatusCmd)
	agentCmd.AddCommand(agentLogCmd)
	rootCmd.AddCommand(agentCmd)
}
