package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codorch/codorch/internal/command"
	"github.com/codorch/codorch/internal/session"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a line of text to a worker's or the manager's session",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().String("run-id", "", "Run identifier (required)")
	sendCmd.Flags().String("worker", "", `Worker ID (e.g. "w1") or "manager" (required)`)
	sendCmd.Flags().String("text", "", "Text to send, followed by Enter (required)")
	_ = sendCmd.MarkFlagRequired("run-id")
	_ = sendCmd.MarkFlagRequired("worker")
	_ = sendCmd.MarkFlagRequired("text")
}

func runSend(cmd *cobra.Command, args []string) error {
	runsRoot, err := resolveRunsRoot(cmd)
	if err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("run-id")
	worker, _ := cmd.Flags().GetString("worker")
	text, _ := cmd.Flags().GetString("text")

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

	runner := command.NewRunner()
	tmux := session.NewTmuxSupervisor(runner, ".")
	if err := tmux.SendText(cmd.Context(), sessionName, text, true); err != nil {
		return fmt.Errorf("cli: send to %s: %w", sessionName, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", sessionName)
	return nil
}
