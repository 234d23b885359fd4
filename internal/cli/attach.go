package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to the manager's or a worker's live session",
	RunE:  runAttach,
}

func init() {
	attachCmd.Flags().String("run-id", "", "Run identifier (required)")
	attachCmd.Flags().String("worker", "", `Worker ID (e.g. "w1") or "manager" (required)`)
	_ = attachCmd.MarkFlagRequired("run-id")
	_ = attachCmd.MarkFlagRequired("worker")
}

func runAttach(cmd *cobra.Command, args []string) error {
	runsRoot, err := resolveRunsRoot(cmd)
	if err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("run-id")
	worker, _ := cmd.Flags().GetString("worker")

	doc, err := requireSessions(runsRoot, runID)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), err)
		return nil
	}

	sessionName := resolveSessionName(doc, worker)
	if sessionName == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "unknown worker: %s\n", worker)
		return nil
	}

	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("cli: attach requires tmux on PATH: %w", err)
	}

	// Replace this process with tmux attach, the same way the Python CLI's
	// cmd_attach does with os.execvp — there's nothing left to return to.
	argv := []string{"tmux", "attach", "-t", sessionName}
	return syscall.Exec(tmuxPath, argv, os.Environ())
}
