package repro

import (
	"sort"
	"strings"

	"github.com/codorch/codorch/internal/types"
)

// ScoreCandidate computes spec.md §4.9's score:
//
//	score = 0.6*determinism + 0.25*fidelity + 0.15*size_score
//	determinism = matches / total_runs
//	fidelity    = 1 if the claimed signature contains any expected-signal term, else 0
//	size_score  = max(0, 1 - min(lines, 200)/200)
func ScoreCandidate(candidate types.ReproCandidate, validation types.ValidationResult, signals []types.FailureSignal) float64 {
	determinism := 0.0
	if validation.TotalRuns > 0 {
		determinism = float64(validation.Matches) / float64(validation.TotalRuns)
	}

	fidelity := 0.0
	claimedLower := strings.ToLower(candidate.ClaimedFailureSignature)
	for _, sig := range signals {
		if sig.ExceptionType != "" && strings.Contains(claimedLower, strings.ToLower(sig.ExceptionType)) {
			fidelity = 1.0
			break
		}
		if sig.MessageSubstring != "" && strings.Contains(claimedLower, strings.ToLower(sig.MessageSubstring)) {
			fidelity = 1.0
			break
		}
	}

	lines := candidate.LineCount()
	capped := lines
	if capped > 200 {
		capped = 200
	}
	sizeScore := 1.0 - float64(capped)/200.0
	if sizeScore < 0 {
		sizeScore = 0
	}

	return 0.6*determinism + 0.25*fidelity + 0.15*sizeScore
}

// ChooseBestCandidate picks the highest-scoring candidate among those whose
// validation passed, breaking ties by fewer lines then by candidate id. It
// returns nil if no candidate passed (the run then ends as needs-human,
// spec.md §4.9 "Select").
func ChooseBestCandidate(candidates []types.ReproCandidate) *types.ReproCandidate {
	var passing []types.ReproCandidate
	for _, c := range candidates {
		if c.Validation != nil && c.Validation.Passed {
			passing = append(passing, c)
		}
	}
	if len(passing) == 0 {
		return nil
	}

	sort.SliceStable(passing, func(i, j int) bool {
		si, sj := 0.0, 0.0
		if passing[i].Score != nil {
			si = *passing[i].Score
		}
		if passing[j].Score != nil {
			sj = *passing[j].Score
		}
		if si != sj {
			return si > sj
		}
		li, lj := passing[i].LineCount(), passing[j].LineCount()
		if li != lj {
			return li < lj
		}
		return passing[i].CandidateID < passing[j].CandidateID
	})

	best := passing[0]
	return &best
}
