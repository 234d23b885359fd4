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

// ValidationOptions configures a replay-gate run.
type ValidationOptions struct {
	Runs          int
	MinMatches    int
	TimeoutSec    int
	PythonVersion string
}

func (o ValidationOptions) normalized() ValidationOptions {
	if o.Runs <= 0 {
		o.Runs = 5
	}
	if o.TimeoutSec <= 0 {
		o.TimeoutSec = 30
	}
	if o.PythonVersion == "" {
		o.PythonVersion = "python"
	}
	return o
}

func renderCommand(template, reproFile, python string) string {
	out := strings.ReplaceAll(template, "{repro_file}", reproFile)
	out = strings.ReplaceAll(out, "{python}", python)
	return out
}

// signatureMatches reports whether combinedOutput demonstrates the claimed
// failure signature, or any of the issue's expected failure signals
// (case-insensitive substring match, spec.md §4.9/GLOSSARY "Signature match").
func signatureMatches(combinedOutput, claimedSignature string, signals []types.FailureSignal) bool {
	lower := strings.ToLower(combinedOutput)
	if claimedSignature != "" && strings.Contains(lower, strings.ToLower(claimedSignature)) {
		return true
	}
	for _, sig := range signals {
		if sig.ExceptionType != "" && strings.Contains(lower, strings.ToLower(sig.ExceptionType)) {
			return true
		}
		if sig.MessageSubstring != "" && strings.Contains(lower, strings.ToLower(sig.MessageSubstring)) {
			return true
		}
	}
	return false
}

// ValidateCandidate writes the candidate's script to scriptPath, runs its
// setup commands and oracle command in repoPath (original_source's
// validate_candidate runs both there, not the orchestrator's own process
// directory, so repo-relative imports and paths resolve correctly) — any
// non-zero exit from a setup command fails immediately with matches=0 (B4),
// then executes the oracle command opts.Runs times, counting signature
// matches. passed <=> matches >= max(1, min(MinMatches, Runs)).
func ValidateCandidate(ctx context.Context, runner *command.Runner, candidate types.ReproCandidate, scriptPath, repoPath string, signals []types.FailureSignal, opts ValidationOptions) (types.ValidationResult, error) {
	opts = opts.normalized()
	requiredMatches := opts.MinMatches
	if requiredMatches < 1 {
		requiredMatches = 1
	}
	if requiredMatches > opts.Runs {
		requiredMatches = opts.Runs
	}

	if err := os.WriteFile(scriptPath, []byte(candidate.Script), 0o644); err != nil {
		return types.ValidationResult{}, fmt.Errorf("repro: write candidate script: %w", err)
	}

	for _, setup := range candidate.SetupCommands {
		rendered := renderCommand(setup, scriptPath, opts.PythonVersion)
		out, err := runner.RunShell(ctx, rendered, repoPath, time.Duration(opts.TimeoutSec)*time.Second, false)
		if err != nil {
			return types.ValidationResult{}, fmt.Errorf("repro: setup command failed to run: %w", err)
		}
		if out.ReturnCode != 0 {
			return types.ValidationResult{TotalRuns: opts.Runs, Matches: 0, Passed: false}, nil
		}
	}

	matches := 0
	for i := 0; i < opts.Runs; i++ {
		rendered := renderCommand(candidate.OracleCommand, scriptPath, opts.PythonVersion)
		out, err := runner.RunShell(ctx, rendered, repoPath, time.Duration(opts.TimeoutSec)*time.Second, false)
		if err != nil {
			continue
		}
		if signatureMatches(out.Stdout+out.Stderr, candidate.ClaimedFailureSignature, signals) {
			matches++
		}
	}

	result := types.ValidationResult{
		TotalRuns:        opts.Runs,
		Matches:          matches,
		MatchedSignature: matches > 0,
		Passed:           matches >= requiredMatches,
	}
	return result, nil
}
