package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caspianhq/caspian/internal/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive caspian prompt",
	Long: `Start an interactive prompt. Every caspian subcommand works inside
the shell without the leading "caspian":

  caspian> repo list
  caspian> node create --repo myproject --goal "Fix login flow"
  caspian> agent start eagle-x7k2p`,
	Run: func(cmd *cobra.Command, args []string) {
		if inShell {
			fail("already inside a caspian shell")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stop()

		sh, err := shell.New(&shell.Config{
			Dispatch:    dispatchShellLine,
			HistoryFile: shell.DefaultHistoryFile(),
		})
		if err != nil {
			fail("%v", err)
		}

		inShell = true
		defer func() { inShell = false }()

		if err := sh.Run(ctx); err != nil && ctx.Err() == nil {
			fail("%v", err)
		}
	},
}

// dispatchShellLine runs one shell line through the command tree,
// converting fail() calls back into errors for the prompt.
func dispatchShellLine(ctx context.Context, args []string) (err error) {
	if len(args) > 0 && args[0] == "shell" {
		return fmt.Errorf("already inside a caspian shell")
	}

	defer func() {
		if r := recover(); r != nil {
			if f, ok := r.(shellFailure); ok {
				err = fmt.Errorf("%s", f.msg)
				return
			}
			panic(r)
		}
	}()

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
