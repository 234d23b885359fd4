package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codorch/codorch/internal/artifact"
	"github.com/codorch/codorch/internal/command"
	"github.com/codorch/codorch/internal/session"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Kill every live session for a run and mark it stopped",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().String("run-id", "", "Run identifier (required)")
	_ = stopCmd.MarkFlagRequired("run-id")
}

func runStop(cmd *cobra.Command, args []string) error {
	runsRoot, err := resolveRunsRoot(cmd)
	if err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("run-id")

	store := artifact.NewStore(runsRoot, runID)

	doc, err := requireSessions(runsRoot, runID)
	if err != nil {
		// Nothing was ever launched for this run; still record it stopped.
		doc = sessionsDoc{}
	}

	runner := command.NewRunner()
	tmux := session.NewTmuxSupervisor(runner, ".")
	ctx := cmd.Context()

	if doc.Manager.SessionName != "" {
		tmux.KillSession(ctx, doc.Manager.SessionName)
	}
	for _, meta := range doc.Workers {
		if meta.SessionName != "" {
			tmux.KillSession(ctx, meta.SessionName)
		}
	}

	if _, err := os.Stat(store.Paths.RunDoneJSON); os.IsNotExist(err) {
		_ = store.WriteJSON(store.Paths.RunDoneJSON, map[string]interface{}{
			"run_id":        runID,
			"status":        "stopped",
			"final_md":      store.Paths.FinalMD,
			"decision_json": store.Paths.DecisionJSON,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "stopped run %s\n", runID)
	return nil
}
