package repro

import (
	"context"
	"strings"

	"github.com/codorch/codorch/internal/command"
	"github.com/codorch/codorch/internal/types"
)

// SemanticReducer invokes an external agent to propose a smaller script that
// still reproduces the failure (spec.md §4.9 step 1, "semantic reduction").
// It returns the reduced script text and true, or ("", false) when the agent
// produced nothing usable — minimization then proceeds straight to delta
// debugging over the original script's lines.
type SemanticReducer func(ctx context.Context, candidate types.ReproCandidate) (string, bool)

// Minimize performs spec.md §4.9's two-stage minimization: an optional
// semantic-reduction pass (via reduce, when non-nil), followed by delta
// debugging over whichever script survives that pass. The minimized script
// is always re-validated before being accepted (spec.md §9, "semantic
// minimization trust") — if re-validation fails, minimization falls back to
// the original, pre-minimization script unmodified.
func Minimize(ctx context.Context, runner *command.Runner, candidate types.ReproCandidate, scriptPath, repoPath string, signals []types.FailureSignal, opts ValidationOptions, reduce SemanticReducer) (string, error) {
	working := candidate.Script

	if reduce != nil {
		if reduced, ok := reduce(ctx, candidate); ok {
			if block := extractCodeBlock(reduced); block != "" {
				trial := candidate
				trial.Script = ensureTrailingNewline(block)
				if result, err := ValidateCandidate(ctx, runner, trial, scriptPath, repoPath, signals, opts); err == nil && result.Passed {
					working = trial.Script
				}
			}
		}
	}

	lines := splitLines(working)
	oracle := func(trialLines []string) bool {
		trial := candidate
		trial.Script = ensureTrailingNewline(strings.Join(trialLines, "\n"))
		result, err := ValidateCandidate(ctx, runner, trial, scriptPath, repoPath, signals, opts)
		return err == nil && result.Passed
	}

	minimizedScript := ensureTrailingNewline(strings.Join(DDMin(lines, oracle), "\n"))

	final := candidate
	final.Script = minimizedScript
	result, err := ValidateCandidate(ctx, runner, final, scriptPath, repoPath, signals, opts)
	if err != nil || !result.Passed {
		return candidate.Script, nil
	}
	return minimizedScript, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func ensureTrailingNewline(s string) string {
	if s == "" {
		return s
	}
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
