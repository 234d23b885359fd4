package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueSpecValidate(t *testing.T) {
	base := IssueSpec{IssueURL: "https://github.com/o/r/issues/1", Status: StatusNeedsHuman}
	require.NoError(t, base.Validate())

	ok := base
	ok.Status = StatusOK
	assert.Error(t, ok.Validate(), "status=ok with no signals must fail validation")

	ok.ExpectedFailureSignals = []FailureSignal{{ExceptionType: "ZeroDivisionError"}}
	assert.NoError(t, ok.Validate())

	missingURL := base
	missingURL.IssueURL = ""
	assert.Error(t, missingURL.Validate())
}

func TestFailureSignalKeyDedup(t *testing.T) {
	a := FailureSignal{ExceptionType: "ValueError"}
	b := FailureSignal{ExceptionType: "ValueError"}
	c := FailureSignal{ExceptionType: "TypeError"}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestValidationResultInvariant(t *testing.T) {
	good := ValidationResult{TotalRuns: 5, Matches: 3, Passed: true}
	require.NoError(t, good.Validate(1))

	tooFew := ValidationResult{TotalRuns: 5, Matches: 0, Passed: true}
	assert.Error(t, tooFew.Validate(1), "passed=true with matches below required must be rejected")

	impossible := ValidationResult{TotalRuns: 5, Matches: 6}
	assert.Error(t, impossible.Validate(1))
}

func TestReproCandidateValidateAndLineCount(t *testing.T) {
	c := ReproCandidate{CandidateID: "w1-candidate", Script: "a\nb\nc", OracleCommand: "python {repro_file}"}
	require.NoError(t, c.Validate())
	assert.Equal(t, 3, c.LineCount())

	empty := ReproCandidate{CandidateID: "x"}
	assert.Error(t, empty.Validate())
}

func TestTriageHypothesisConfidenceRange(t *testing.T) {
	h := TriageHypothesis{HypothesisID: "w1-h1", Confidence: 0.5}
	require.NoError(t, h.Validate())

	h.Confidence = 1.5
	assert.Error(t, h.Validate())
}
