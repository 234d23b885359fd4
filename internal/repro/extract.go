// Package repro implements the Reproducer Validator & Minimizer (spec.md
// §4.9): tolerant parsing of worker output, the deterministic replay gate,
// scoring and selection, and the two-stage minimization pipeline (semantic
// reduction + delta debugging).
package repro

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/codorch/codorch/internal/types"
)

// extractJSONPayload tolerates a JSON object embedded in free-form text or
// markdown code fences: it tries a strict decode first, then falls back to
// locating the outermost balanced `{...}` braces (spec.md §4.9, §9).
func extractJSONPayload(text string) (map[string]interface{}, bool) {
	var strict map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &strict); err == nil {
		return strict, true
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}

	var loose map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &loose); err != nil {
		return nil, false
	}
	return loose, true
}

// ParseCandidate reads a REPRO_BUILDER worker's output file and decodes it
// into a ReproCandidate. A missing, empty or non-JSON file yields (nil, nil)
// — not an error (B2); a JSON payload that lacks a required key yields no
// candidate and an error carrying the schema diagnostic.
func ParseCandidate(outputPath string) (*types.ReproCandidate, error) {
	data, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("repro: read worker output %s: %w", outputPath, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	payload, ok := extractJSONPayload(string(data))
	if !ok {
		return nil, nil
	}

	candidate := types.ReproCandidate{
		CandidateID:             stringField(payload, "candidate_id"),
		Script:                  stringField(payload, "script"),
		OracleCommand:           stringField(payload, "oracle_command"),
		ClaimedFailureSignature: stringField(payload, "claimed_failure_signature"),
		FileExtension:           stringField(payload, "file_extension"),
		SetupCommands:           stringSliceField(payload, "setup_commands"),
	}
	if candidate.FileExtension == "" {
		candidate.FileExtension = "py"
	}

	if candidate.CandidateID == "" || candidate.Script == "" || candidate.OracleCommand == "" {
		if err := validateCandidateSchema(payload); err != nil {
			return nil, fmt.Errorf("repro: candidate output missing required keys (candidate_id, script, oracle_command): %w", err)
		}
		return nil, fmt.Errorf("repro: candidate output missing required keys (candidate_id, script, oracle_command)")
	}

	return &candidate, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringSliceField(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// extractCodeBlock pulls the first fenced (```...```) or fence-like code
// block out of free-form text, falling back to the whole trimmed text if no
// fence is found.
func extractCodeBlock(text string) string {
	const fence = "```"
	start := strings.Index(text, fence)
	if start < 0 {
		return strings.TrimSpace(text)
	}
	afterOpen := start + len(fence)
	// skip an optional language tag on the same line as the opening fence
	if nl := strings.IndexByte(text[afterOpen:], '\n'); nl >= 0 && nl < 40 {
		afterOpen += nl + 1
	}
	end := strings.Index(text[afterOpen:], fence)
	if end < 0 {
		return strings.TrimSpace(text[afterOpen:])
	}
	return strings.TrimSpace(text[afterOpen : afterOpen+end])
}
