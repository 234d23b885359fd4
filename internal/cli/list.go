package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/codorch/codorch/internal/artifact"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every run recorded under the runs root",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	runsRoot, err := resolveRunsRoot(cmd)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(runsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "no runs under %s\n", runsRoot)
			return nil
		}
		return fmt.Errorf("cli: list %s: %w", runsRoot, err)
	}

	var runIDs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runIDs = append(runIDs, entry.Name())
		}
	}
	sort.Strings(runIDs)

	out := cmd.OutOrStdout()
	for _, runID := range runIDs {
		store := artifact.NewStore(runsRoot, runID)
		status := "in-progress"
		var runDone map[string]interface{}
		if err := store.ReadJSON(store.Paths.RunDoneJSON, &runDone); err == nil {
			if s, ok := runDone["status"].(string); ok && s != "" {
				status = s
			}
		}
		fmt.Fprintf(out, "%s status=%s\n", runID, status)
	}
	if len(runIDs) == 0 {
		fmt.Fprintf(out, "no runs under %s\n", runsRoot)
	}
	return nil
}
