// Package worker builds role-specific prompts and the shell launcher that
// invokes the LLM-agent CLI inside a worker's sandboxed worktree (spec.md
// §4.7). The agent CLI itself is an external black box; this package only
// emits the files that launch it.
package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codorch/codorch/internal/types"
)

const (
	// RoleRepro and RoleTriage mirror types.RoleReproBuilder / RoleTriager
	// as the literal tokens embedded in prompts.
	RoleRepro  = "REPRO_BUILDER"
	RoleTriage = "TRIAGER"
)

func issueSpecJSON(spec types.IssueSpec) (string, error) {
	payload := map[string]interface{}{
		"issue_url":   spec.IssueURL,
		"repo_slug":   spec.RepoSlug,
		"issue_number": spec.IssueNumber,
		"title":       spec.Title,
		"body":        spec.Body,
		"labels":      spec.Labels,
		"constraints": spec.Constraints,
		"target_paths": spec.TargetPaths,
	}
	signals := make([]map[string]interface{}, 0, len(spec.ExpectedFailureSignals))
	for _, s := range spec.ExpectedFailureSignals {
		signals = append(signals, map[string]interface{}{
			"exception_type":    s.ExceptionType,
			"message_substring": s.MessageSubstring,
			"exit_code":         s.ExitCode,
			"raw_pattern":       s.RawPattern,
		})
	}
	payload["expected_failure_signals"] = signals

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("worker: marshal issue spec for prompt: %w", err)
	}
	return string(data), nil
}

// BuildReproPrompt emits the REPRO_BUILDER role prompt (spec.md §6.3 schema).
func BuildReproPrompt(spec types.IssueSpec, workerID string) (string, error) {
	issueJSON, err := issueSpecJSON(spec)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`ROLE: %s
TASK: Build a minimal reproducer candidate for this issue.
OUTPUT FORMAT: JSON only, no markdown.

Required JSON schema:
{
  "candidate_id": "%s-candidate",
  "script": "<full repro script text>",
  "setup_commands": ["<shell command>", "..."],
  "oracle_command": "<shell command; can reference {repro_file} placeholder>",
  "claimed_failure_signature": "<short string that must appear when bug reproduces>",
  "file_extension": "py"
}

Constraints:
- Keep setup_commands minimal and deterministic.
- oracle_command must fail loudly if bug is not reproduced.
- preserve the issue's likely root cause behavior.
- Do not propose codebase edits.

Issue Spec:
%s
`, RoleRepro, workerID, issueJSON), nil
}

// BuildTriagePrompt emits the TRIAGER role prompt, embedding the minimized
// reproducer and any code-search hints derived from the issue's target paths.
func BuildTriagePrompt(spec types.IssueSpec, workerID, minimalRepro string, codeSearchHints []string) (string, error) {
	issueJSON, err := issueSpecJSON(spec)
	if err != nil {
		return "", err
	}

	hints := "- none"
	if len(codeSearchHints) > 0 {
		lines := make([]string, len(codeSearchHints))
		for i, h := range codeSearchHints {
			lines[i] = "- " + h
		}
		hints = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`ROLE: %s
TASK: Produce triage hypotheses for the bug. Use repository evidence and the minimal repro.
OUTPUT FORMAT: JSON only, no markdown.

Required JSON schema:
{
  "hypotheses": [
    {
      "hypothesis_id": "%s-h1",
      "mechanism": "<what fails and why>",
      "evidence": [{"file": "path", "line": 123, "snippet": "code"}],
      "confidence": 0.0,
      "disconfirming_checks": ["<check>"]
    }
  ]
}

Rules:
- confidence must be within [0, 1].
- include at least one evidence row per hypothesis.
- list concrete disconfirming checks.
- no fixes in this phase.

Code search hints:
%s

Minimal repro script:
%s

Issue Spec:
%s
`, RoleTriage, workerID, hints, fence(minimalRepro), issueJSON), nil
}

func fence(text string) string {
	return "```text\n" + text + "\n```"
}

// LaunchScript describes the generated shell launcher and its sidecar prompt file.
type LaunchScript struct {
	ScriptPath string
	PromptPath string
}

// BuildLaunchScript writes the prompt to a sidecar text file and an
// executable shell launcher that cds into the worktree and invokes the
// agent CLI with the prompt, an optional model flag, a read-only sandbox,
// and an -o output path; when telemetryPath is set, the agent's structured
// event stream is also redirected to a JSONL file (spec.md §4.7).
func BuildLaunchScript(prompt, outputPath, scriptPath, worktreePath, model, telemetryPath string) (LaunchScript, error) {
	promptPath := strings.TrimSuffix(scriptPath, filepath.Ext(scriptPath)) + ".prompt.txt"
	if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
		return LaunchScript{}, fmt.Errorf("worker: write prompt file: %w", err)
	}

	modelArg := ""
	if strings.TrimSpace(model) != "" {
		modelArg = fmt.Sprintf("-m %s ", shellQuote(model))
	}

	telemetryAssign := ""
	telemetrySink := ""
	if telemetryPath != "" {
		telemetryAssign = fmt.Sprintf("TELEMETRY_FILE=%s\n", telemetryPath)
		telemetrySink = `--json > "$TELEMETRY_FILE"`
	}

	script := fmt.Sprintf(`#!/usr/bin/env sh
set -eu
PROMPT_FILE=%s
OUTPUT_FILE=%s
%scd %s
codex exec "$(cat "$PROMPT_FILE")" %s-s read-only --skip-git-repo-check -C %s -o "$OUTPUT_FILE" %s
`, promptPath, outputPath, telemetryAssign, worktreePath, modelArg, worktreePath, telemetrySink)

	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return LaunchScript{}, fmt.Errorf("worker: write launch script: %w", err)
	}

	return LaunchScript{ScriptPath: scriptPath, PromptPath: promptPath}, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
