package repro

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codorch/codorch/internal/command"
	"github.com/codorch/codorch/internal/types"
)

// semanticReducePrompt builds the minimization prompt passed to the agent
// CLI, mirroring semantic_reduce_script's prompt text (original_source's
// repro.py).
func semanticReducePrompt(script string, spec types.IssueSpec) string {
	signalNames := make([]string, 0, len(spec.ExpectedFailureSignals))
	for _, s := range spec.ExpectedFailureSignals {
		if s.ExceptionType != "" {
			signalNames = append(signalNames, s.ExceptionType)
		} else if s.MessageSubstring != "" {
			signalNames = append(signalNames, s.MessageSubstring)
		}
	}

	return fmt.Sprintf(`You are minimizing a bug reproducer. Return only code.
Goal: preserve the same failure signature and root-cause shape while removing noise.
Issue: %s
Expected signals: [%s]
Code:
`+"```python\n%s\n```\n", spec.Title, strings.Join(signalNames, ", "), script)
}

// NewSemanticReducer builds a SemanticReducer that shells directly to the
// agent CLI via runner — not through a worker's tmux session, this is a
// synchronous manager-side call — mirroring semantic_reduce_script: invoke
// "codex exec" with the minimization prompt in a read-only sandbox rooted
// at repoPath, capture its structured telemetry to telemetryPath, and read
// the reduced script back from outputPath. Returns ("", false) on any
// failure, leaving the caller to fall back to the unreduced script.
func NewSemanticReducer(runner *command.Runner, spec types.IssueSpec, repoPath, model, outputPath, telemetryPath string) SemanticReducer {
	return func(ctx context.Context, candidate types.ReproCandidate) (string, bool) {
		prompt := semanticReducePrompt(candidate.Script, spec)

		args := []string{"codex", "exec", prompt}
		if strings.TrimSpace(model) != "" {
			args = append(args, "-m", strings.TrimSpace(model))
		}
		args = append(args, "-s", "read-only", "--skip-git-repo-check", "-C", repoPath, "-o", outputPath, "--json")

		out, err := runner.Run(ctx, args, repoPath, 120*time.Second, false)
		if telemetryPath != "" {
			_ = os.WriteFile(telemetryPath, []byte(out.Stdout), 0o644)
		}
		if err != nil || out.ReturnCode != 0 {
			return "", false
		}

		data, err := os.ReadFile(outputPath)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}
