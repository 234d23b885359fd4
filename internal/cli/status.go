package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/codorch/codorch/internal/command"
	"github.com/codorch/codorch/internal/config"
	"github.com/codorch/codorch/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the manager and worker session state for a run",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("run-id", "", "Run identifier (required)")
	_ = statusCmd.MarkFlagRequired("run-id")
}

// resolveRunsRoot applies --runs-root over the config file's runs_root,
// the same precedence run.go uses.
func resolveRunsRoot(cmd *cobra.Command) (string, error) {
	configPath, _ := cmd.Flags().GetString("config")
	explicit, _ := cmd.Flags().GetString("runs-root")

	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cli: determine working directory: %w", err)
	}
	cfg, err := config.Load(configPath, root)
	if err != nil {
		return "", err
	}
	return runsRootFlag(explicit, cfg.RunsRoot), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	runsRoot, err := resolveRunsRoot(cmd)
	if err != nil {
		return err
	}
	runID, _ := cmd.Flags().GetString("run-id")

	doc, err := requireSessions(runsRoot, runID)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), err)
		return nil
	}

	runner := command.NewRunner()
	tmux := session.NewTmuxSupervisor(runner, ".")
	ctx := cmd.Context()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run_id=%s\n", runID)

	managerExists := doc.Manager.SessionName != "" && tmux.SessionExists(ctx, doc.Manager.SessionName)
	fmt.Fprintf(out, "manager=%s exists=%t\n", doc.Manager.SessionName, managerExists)

	workerIDs := make([]string, 0, len(doc.Workers))
	for id := range doc.Workers {
		workerIDs = append(workerIDs, id)
	}
	sort.Strings(workerIDs)

	for _, id := range workerIDs {
		meta := doc.Workers[id]
		exists := meta.SessionName != "" && tmux.SessionExists(ctx, meta.SessionName)
		fmt.Fprintf(out, "%s role=%s session=%s status=%s exists=%t\n", id, meta.Role, meta.SessionName, meta.Status, exists)
	}
	return nil
}
