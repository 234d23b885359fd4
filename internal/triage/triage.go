// Package triage implements the Triage Ranker (spec.md §4.10): tolerant
// parsing of TRIAGER worker output, evidence validation against the real
// source checkout, scoring, and the wave-termination disagreement check.
package triage

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/codorch/codorch/internal/types"
)

var disallowedEvidencePathGlobs = []string{
	"../**",
	"**/../**",
	"..",
}

// extractJSONPayload tolerates a JSON object embedded in free-form text or
// markdown code fences, mirroring internal/repro's extractor (spec.md §4.10,
// §9 "tolerant JSON parsing").
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

// ParseTriageOutput reads a TRIAGER worker's output file and decodes its
// "hypotheses" array. A missing or empty file yields an empty slice, not an
// error (spec.md B2, consistent with internal/repro.ParseCandidate).
func ParseTriageOutput(workerID, outputPath string) ([]types.TriageHypothesis, error) {
	data, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("triage: read worker output %s: %w", outputPath, err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, nil
	}

	payload, ok := extractJSONPayload(raw)
	if !ok {
		return nil, nil
	}

	rawHypotheses, _ := payload["hypotheses"].([]interface{})
	if len(rawHypotheses) == 0 {
		if err := validateHypothesesSchema(payload); err != nil {
			return nil, err
		}
	}
	hypotheses := make([]types.TriageHypothesis, 0, len(rawHypotheses))
	for idx, item := range rawHypotheses {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		id := stringField(obj, "hypothesis_id")
		if id == "" {
			id = fmt.Sprintf("%s-h%d", workerID, idx+1)
		}

		hypotheses = append(hypotheses, types.TriageHypothesis{
			HypothesisID:        id,
			Mechanism:           strings.TrimSpace(stringField(obj, "mechanism")),
			Evidence:            evidenceField(obj),
			Confidence:          clamp01(floatField(obj, "confidence")),
			DisconfirmingChecks: stringSliceField(obj, "disconfirming_checks"),
			WorkerID:            workerID,
		})
	}
	return hypotheses, nil
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return 0.0
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}

func stringSliceField(m map[string]interface{}, key string) []string {
	list, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

func evidenceField(m map[string]interface{}) []types.TriageEvidence {
	list, ok := m["evidence"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]types.TriageEvidence, 0, len(list))
	for _, v := range list {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, types.TriageEvidence{
			File:    stringField(obj, "file"),
			Line:    intField(obj, "line"),
			Snippet: stringField(obj, "snippet"),
		})
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// evidenceValid reports whether a citation points at a real line of a real
// file under repoPath, and — when a snippet is given — that the snippet is a
// literal substring of that line (spec.md §4.10 "evidence validity").
// Evidence paths are also checked against a traversal-escape glob blacklist,
// so a worker can't cite "../../../etc/passwd" as supporting evidence.
func evidenceValid(repoPath string, evidence types.TriageEvidence) bool {
	if evidence.File == "" || evidence.Line <= 0 {
		return false
	}
	cleaned := filepath.ToSlash(filepath.Clean(evidence.File))
	for _, pattern := range disallowedEvidencePathGlobs {
		if matched, _ := doublestar.Match(pattern, cleaned); matched {
			return false
		}
	}
	if strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "..") {
		return false
	}

	full := filepath.Join(repoPath, evidence.File)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return false
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return false
	}
	lines := strings.Split(string(data), "\n")
	if evidence.Line > len(lines) {
		return false
	}
	lineText := lines[evidence.Line-1]
	if evidence.Snippet != "" && !strings.Contains(lineText, evidence.Snippet) {
		return false
	}
	return true
}

func normalizedMechanism(mechanism string) string {
	return strings.ToLower(strings.TrimSpace(mechanism))
}

// agreementWeight is the number of hypotheses sharing this normalized
// mechanism divided by the number of distinct workers, capped at 1.0
// (spec.md §4.10 "agreement_score").
func agreementWeight(mechanism string, all []types.TriageHypothesis) float64 {
	normalized := normalizedMechanism(mechanism)
	if normalized == "" {
		return 0.0
	}
	matches := 0
	workers := map[string]struct{}{}
	for _, h := range all {
		workers[h.WorkerID] = struct{}{}
		if normalizedMechanism(h.Mechanism) == normalized {
			matches++
		}
	}
	maxMatches := len(workers)
	if maxMatches < 1 {
		maxMatches = 1
	}
	return math.Min(1.0, float64(matches)/float64(maxMatches))
}

// replayConsistency scores how many of a mechanism's significant (>=4 char)
// words appear in the winning reproducer's script text, a cheap proxy for
// "does this hypothesis line up with what we actually reproduced" (spec.md
// §4.10 "replay_score").
func replayConsistency(mechanism, reproText string) float64 {
	if strings.TrimSpace(mechanism) == "" || strings.TrimSpace(reproText) == "" {
		return 0.0
	}
	words := map[string]struct{}{}
	for _, word := range strings.Fields(mechanism) {
		if len(word) >= 4 {
			words[strings.ToLower(word)] = struct{}{}
		}
	}
	if len(words) == 0 {
		return 0.0
	}
	reproLower := strings.ToLower(reproText)
	overlaps := 0
	for word := range words {
		if strings.Contains(reproLower, word) {
			overlaps++
		}
	}
	return math.Min(1.0, float64(overlaps)/float64(len(words)))
}

// RankHypotheses filters hypotheses to those with a mechanism and at least
// one valid evidence citation, scores the survivors, and returns them sorted
// by (score desc, confidence desc, hypothesis_id asc) — spec.md §4.10.
func RankHypotheses(repoPath string, hypotheses []types.TriageHypothesis, reproText string) []types.TriageHypothesis {
	filtered := make([]types.TriageHypothesis, 0, len(hypotheses))
	for _, h := range hypotheses {
		if h.Mechanism == "" || len(h.Evidence) == 0 {
			continue
		}
		validEvidence := make([]types.TriageEvidence, 0, len(h.Evidence))
		for _, ev := range h.Evidence {
			if evidenceValid(repoPath, ev) {
				validEvidence = append(validEvidence, ev)
			}
		}
		if len(validEvidence) == 0 {
			continue
		}
		kept := h
		kept.Evidence = validEvidence
		filtered = append(filtered, kept)
	}

	ranked := make([]types.TriageHypothesis, 0, len(filtered))
	for _, h := range filtered {
		evidenceScore := math.Min(1.0, float64(len(h.Evidence))/3.0)
		agreementScore := agreementWeight(h.Mechanism, filtered)
		replayScore := replayConsistency(h.Mechanism, reproText)
		confidenceScore := h.Confidence

		score := round5(0.40*evidenceScore + 0.25*agreementScore + 0.20*replayScore + 0.15*confidenceScore)
		kept := h
		kept.Score = &score
		ranked = append(ranked, kept)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scoreOf(ranked[i]), scoreOf(ranked[j])
		if si != sj {
			return si > sj
		}
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].HypothesisID < ranked[j].HypothesisID
	})

	return ranked
}

func scoreOf(h types.TriageHypothesis) float64 {
	if h.Score == nil {
		return 0.0
	}
	return *h.Score
}

func round5(f float64) float64 {
	const factor = 1e5
	return math.Round(f*factor) / factor
}

// TopHypotheses returns the first limit entries of an already-ranked slice.
func TopHypotheses(ranked []types.TriageHypothesis, limit int) []types.TriageHypothesis {
	if limit <= 0 || limit >= len(ranked) {
		return ranked
	}
	return ranked[:limit]
}

// DisagreementHigh reports whether the wave should keep recruiting more
// triage workers: true when at least two distinct mechanisms are present and
// the top two scores are within 0.15 of each other (spec.md §4.10, Open
// Question 2 — a ranked list of one distinct mechanism never counts as high
// disagreement, ported as-is from the original's _triage_disagreement_high).
func DisagreementHigh(ranked []types.TriageHypothesis) bool {
	if len(ranked) == 0 {
		return false
	}
	mechanisms := map[string]struct{}{}
	for _, h := range ranked {
		if m := normalizedMechanism(h.Mechanism); m != "" {
			mechanisms[m] = struct{}{}
		}
	}
	if len(mechanisms) <= 1 {
		return false
	}
	if len(ranked) < 2 {
		return false
	}
	return math.Abs(scoreOf(ranked[0])-scoreOf(ranked[1])) <= 0.15
}
