// Caspian is a CLI for managing git worktree nodes across repositories,
// with agent sessions, health monitoring, and port tracking.
package main

func main() {
	Execute()
}
