// Package shell implements the interactive caspian prompt. Lines are
// tokenized and dispatched to the CLI's command tree, so everything
// available as a subcommand works inside the shell too.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// Dispatch runs one tokenized command line.
type Dispatch func(ctx context.Context, args []string) error

// Shell represents the interactive prompt
type Shell struct {
	rl       *readline.Instance
	dispatch Dispatch
	builtins map[string]func(args []string) error
}

// Config holds shell configuration
type Config struct {
	// Dispatch executes non-builtin command lines (required)
	Dispatch Dispatch

	// HistoryFile persists readline history; empty keeps it in memory
	HistoryFile string
}

// DefaultHistoryFile returns the default readline history location.
func DefaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".caspian", "shell_history")
}

// New creates a new shell instance
func New(cfg *Config) (*Shell, error) {
	if cfg.Dispatch == nil {
		return nil, fmt.Errorf("dispatch is required")
	}

	s := &Shell{
		dispatch: cfg.Dispatch,
		builtins: make(map[string]func(args []string) error),
	}
	s.registerBuiltins()

	if cfg.HistoryFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.HistoryFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("caspian> "),
		HistoryFile:       cfg.HistoryFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl

	return s, nil
}

// Run starts the shell loop, returning when the user exits.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	s.printWelcome()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C clears the line, not the shell
				continue
			}
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := s.processInput(ctx, line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

// processInput processes a single line of input
func (s *Shell) processInput(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	if builtin, ok := s.builtins[parts[0]]; ok {
		return builtin(parts[1:])
	}

	return s.dispatch(ctx, parts)
}

// registerBuiltins registers the commands handled by the shell itself
func (s *Shell) registerBuiltins() {
	s.builtins["help"] = s.cmdHelp
	s.builtins["?"] = s.cmdHelp
	s.builtins["exit"] = s.cmdExit
	s.builtins["quit"] = s.cmdExit
}

// printWelcome prints the welcome message
func (s *Shell) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Caspian"))
	fmt.Println("Worktree nodes, agents, and repository health")
	fmt.Println()
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

// cmdHelp shows help information
func (s *Shell) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"repo add|list|remove|init|clone", "Manage tracked repositories"},
		{"repo activate|deactivate", "Show or hide a repository tab"},
		{"node create|list|commit|remove", "Manage worktree nodes"},
		{"node review|approve|close|reopen", "Move a node through review"},
		{"agent start|stop|status|log", "Run agents against node worktrees"},
		{"health [--sweep]", "Show repository health"},
		{"ports <node> [--watch]", "Show a node's ports"},
		{"watch", "Watch worktrees for file changes"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the shell"},
	}
	for _, cmd := range commands {
		fmt.Printf("  %s\n      %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Println()

	return nil
}

// cmdExit exits the shell
func (s *Shell) cmdExit(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("\n%s Goodbye!\n", green("✓"))
	return io.EOF
}
