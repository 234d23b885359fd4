// Package preflight runs the startup checks that gate the rest of a run
// (spec.md §4.6): required binaries on PATH, a valid VCS working tree, and
// the agent CLI's authentication.
package preflight

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/codorch/codorch/internal/command"
)

// Check is one named preflight result.
type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

// Result aggregates every check run; Passed is true only if all checks passed.
type Result struct {
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

// Config names the external binaries and repository root to validate.
type Config struct {
	RepoPath          string
	SessionBinary     string // e.g. "tmux"; empty when using the pty backend
	VCSBinary         string // e.g. "git"
	AgentBinary       string // e.g. "codex"
	AgentAuthCommand  []string
	AgentAuthTimeout  time.Duration
}

func hasCommand(name string) bool {
	if name == "" {
		return true
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func checkGitRepo(ctx context.Context, runner *command.Runner, repoPath string) Check {
	out, err := runner.Run(ctx, []string{"git", "rev-parse", "--is-inside-work-tree"}, repoPath, 10*time.Second, false)
	if err != nil {
		return Check{Name: "git_repo", Passed: false, Details: err.Error()}
	}
	if out.ReturnCode != 0 || strings.TrimSpace(out.Stdout) != "true" {
		return Check{Name: "git_repo", Passed: false, Details: "repo_path is not inside a git working tree"}
	}
	return Check{Name: "git_repo", Passed: true}
}

func checkAgentAuth(ctx context.Context, runner *command.Runner, cfg Config) Check {
	args := cfg.AgentAuthCommand
	if len(args) == 0 {
		return Check{Name: "agent_auth", Passed: true, Details: "no auth dry-run configured"}
	}
	timeout := cfg.AgentAuthTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	out, err := runner.Run(ctx, args, cfg.RepoPath, timeout, false)
	if err != nil {
		return Check{Name: "agent_auth", Passed: false, Details: err.Error()}
	}
	if out.ReturnCode != 0 {
		details := strings.TrimSpace(out.Stderr + " " + out.Stdout)
		lower := strings.ToLower(details)
		if strings.Contains(lower, "login") || strings.Contains(lower, "auth") {
			details = "agent authentication required: " + details
		}
		return Check{Name: "agent_auth", Passed: false, Details: details}
	}
	return Check{Name: "agent_auth", Passed: true}
}

// Run executes every preflight check in order, short-circuiting the agent
// auth dry-run if any earlier check already failed (matching
// original_source's preflight.py: the auth check only runs when all prior
// checks passed, since it's the most expensive one).
func Run(ctx context.Context, runner *command.Runner, cfg Config) Result {
	var checks []Check

	for _, bin := range []struct{ label, name string }{
		{"session_binary", cfg.SessionBinary},
		{"vcs_binary", cfg.VCSBinary},
		{"agent_binary", cfg.AgentBinary},
	} {
		if bin.name == "" {
			continue
		}
		ok := hasCommand(bin.name)
		details := ""
		if !ok {
			details = bin.name + " not found on PATH"
		}
		checks = append(checks, Check{Name: bin.label, Passed: ok, Details: details})
	}

	allOK := true
	for _, c := range checks {
		if !c.Passed {
			allOK = false
		}
	}

	if cfg.RepoPath == "" || !filepath.IsAbs(cfg.RepoPath) {
		checks = append(checks, Check{Name: "repo_path", Passed: false, Details: "repo_path must be an absolute path"})
		allOK = false
	} else if _, err := os.Stat(cfg.RepoPath); err != nil {
		checks = append(checks, Check{Name: "repo_path", Passed: false, Details: "repo_path does not exist"})
		allOK = false
	} else {
		checks = append(checks, Check{Name: "repo_path", Passed: true})

		gitCheck := checkGitRepo(ctx, runner, cfg.RepoPath)
		checks = append(checks, gitCheck)
		if !gitCheck.Passed {
			allOK = false
		}
	}

	if allOK {
		authCheck := checkAgentAuth(ctx, runner, cfg)
		checks = append(checks, authCheck)
		if !authCheck.Passed {
			allOK = false
		}
	}

	return Result{Checks: checks, Passed: allOK}
}
