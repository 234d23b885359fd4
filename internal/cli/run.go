package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/codorch/codorch/internal/config"
	"github.com/codorch/codorch/internal/manager"
	"github.com/codorch/codorch/internal/types"
)

const (
	defaultSessionBinary = "tmux"
	defaultVCSBinary     = "git"
	defaultAgentBinary   = "codex"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reproduce and triage one issue end to end",
	Long: `Start a new orchestration run against a single issue URL: launch a
REPRO_BUILDER wave, validate and minimize the best candidate, launch a
TRIAGER wave against it, and write the final decision.`,
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("run-id", "", "Run identifier (default: a generated run-<timestamp>-<uuid8>)")
	flags.String("issue-url", "", "GitHub issue URL to triage (required)")
	flags.String("repo-path", "", "Absolute path to the repository checkout (default: config file's repo_path)")
	flags.Int("min-workers", 0, "Minimum REPRO_BUILDER/TRIAGER wave size (0 keeps the config/default value)")
	flags.Int("max-workers", 0, "Maximum wave size (0 keeps the config/default value)")
	flags.Int("timeout-sec", 0, "Per-wave wall-clock timeout in seconds (0 keeps the config/default value)")
	flags.Int("poll-interval-sec", 0, "Supervision loop poll interval in seconds (0 keeps the config/default value)")
	flags.Int("repro-validation-runs", 0, "Replay-gate run count (0 keeps the config/default value)")
	flags.Int("repro-min-matches", 0, "Replay-gate required match count (0 keeps the config/default value)")
	flags.String("validation-python-version", "", "Python version for the reproducer validation runtime")
	flags.String("worker-model", "", "Model name passed to worker agent CLI invocations")
	flags.String("manager-model", "", "Model name for manager-side agent calls (semantic reduction)")
	_ = runCmd.MarkFlagRequired("issue-url")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cli: determine working directory: %w", err)
	}

	cfg, err := config.Load(configPath, root)
	if err != nil {
		return err
	}

	if v, _ := flags.GetString("repo-path"); v != "" {
		cfg.RepoPath = v
	}
	if v, _ := flags.GetString("runs-root"); v != "" {
		cfg.RunsRoot = v
	}
	applyIntOverride(flags, "min-workers", &cfg.MinWorkers)
	applyIntOverride(flags, "max-workers", &cfg.MaxWorkers)
	applyIntOverride(flags, "timeout-sec", &cfg.TimeoutSec)
	applyIntOverride(flags, "poll-interval-sec", &cfg.PollIntervalSec)
	applyIntOverride(flags, "repro-validation-runs", &cfg.ReproValidationRuns)
	applyIntOverride(flags, "repro-min-matches", &cfg.ReproMinMatches)
	if v, _ := flags.GetString("validation-python-version"); v != "" {
		cfg.ValidationPythonVersion = v
	}
	if v, _ := flags.GetString("worker-model"); v != "" {
		cfg.WorkerModel = v
	}
	if v, _ := flags.GetString("manager-model"); v != "" {
		cfg.ManagerModel = v
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	issueURL, _ := flags.GetString("issue-url")

	runID, _ := flags.GetString("run-id")
	if runID == "" {
		runID = fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
	}

	logger.Info("starting run", "run_id", runID, "issue_url", issueURL, "repo_path", cfg.RepoPath)

	mgr := manager.New(manager.Config{
		RunID:            runID,
		IssueURL:         issueURL,
		Manager:          cfg,
		SessionBinary:    resolveBinary("CODORCH_SESSION_BINARY", defaultSessionBinary),
		VCSBinary:        resolveBinary("CODORCH_VCS_BINARY", defaultVCSBinary),
		AgentBinary:      resolveBinary("CODORCH_AGENT_BINARY", defaultAgentBinary),
		AgentAuthCommand: []string{resolveBinary("CODORCH_AGENT_BINARY", defaultAgentBinary), "exec", "--version"},
		AgentAuthTimeout: 15 * time.Second,
		Logger:           logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSec*4)*time.Second)
	defer cancel()

	decision, err := mgr.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s status=%s\n", runID, decision.Status)
	fmt.Fprintf(cmd.OutOrStdout(), "final: %s\n", mgr.Paths().FinalMD)

	if decision.Status == types.StatusNeedsHuman {
		exitCode = 2
	}
	return nil
}

func applyIntOverride(flags *pflag.FlagSet, name string, dest *int) {
	if v, err := flags.GetInt(name); err == nil && v != 0 {
		*dest = v
	}
}

func resolveBinary(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}
