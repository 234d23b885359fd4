// Package cli wires the orchestrator's command-line surface (spec.md
// §6.1): the run command that drives one full Manager pass, and the
// auxiliary commands (list/attach/send/stop/status) that read and act on
// an existing run directory without re-running anything.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codorch",
	Short: "Bug-triage orchestrator: reproduce, minimize, and triage an issue with agent workers",
	Long: `codorch drives a swarm of LLM-agent workers through two roles,
REPRO_BUILDER and TRIAGER, to turn a bug ticket into a validated minimal
reproducer and a ranked set of root-cause hypotheses.

Running 'codorch' without a subcommand invokes the run command's handler;
the run command's own flags are accepted only after 'codorch run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

// exitCode carries the run command's terminal status (spec.md §6.1: 0 on
// status=ok, 2 on status=needs-human) past cobra's error-only RunE
// contract. Argument errors short-circuit through rootCmd.Execute's error
// return and map to 1.
var exitCode int

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to codorch.toml config file (default: ./codorch.toml or $CODORCH_CONFIG)")
	rootCmd.PersistentFlags().String("runs-root", "", "Run directory root (default: <cwd>/runs, or the config file's runs_root)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	exitCode = 0
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}
