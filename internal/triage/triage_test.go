package triage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codorch/codorch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriageOutputMissingFileIsEmptyNotError(t *testing.T) {
	out, err := ParseTriageOutput("w1", filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestParseTriageOutputStrictJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.json")
	body := `{"hypotheses":[{"hypothesis_id":"w1-h1","mechanism":"raises ValueError due to invalid branch","evidence":[{"file":"module.py","line":2,"snippet":"raise ValueError"}],"confidence":0.9,"disconfirming_checks":["input sanitization test"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	parsed, err := ParseTriageOutput("w1", path)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "w1-h1", parsed[0].HypothesisID)
	assert.Equal(t, 0.9, parsed[0].Confidence)
}

func TestParseTriageOutputToleratesWrappedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.json")
	body := "analysis\n```json\n" +
		`{"hypotheses":[{"hypothesis_id":"w2-h1","mechanism":"x","evidence":[{"file":"a.py","line":1,"snippet":"x"}],"confidence":0.2,"disconfirming_checks":[]}]}` +
		"\n```\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	parsed, err := ParseTriageOutput("w2", path)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "w2-h1", parsed[0].HypothesisID)
}

func TestParseTriageOutputAssignsFallbackID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.json")
	body := `{"hypotheses":[{"mechanism":"m","evidence":[],"confidence":0.1}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	parsed, err := ParseTriageOutput("w3", path)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, "w3-h1", parsed[0].HypothesisID)
}

func TestRankHypothesesFiltersInvalidAndSorts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "module.py"), []byte("def boom():\n    raise ValueError('x')\n"), 0o644))

	hypotheses := []types.TriageHypothesis{
		{
			HypothesisID: "w1-h1",
			Mechanism:    "raises ValueError due to invalid branch",
			Evidence:     []types.TriageEvidence{{File: "module.py", Line: 2, Snippet: "raise ValueError"}},
			Confidence:   0.9,
			WorkerID:     "w1",
		},
		{
			HypothesisID: "w1-h2",
			Mechanism:    "",
			Evidence:     []types.TriageEvidence{{File: "missing.py", Line: 1, Snippet: "x"}},
			Confidence:   0.1,
			WorkerID:     "w1",
		},
	}

	ranked := RankHypotheses(root, hypotheses, "ValueError path")
	top := TopHypotheses(ranked, 1)

	require.Len(t, ranked, 1)
	assert.Equal(t, "w1-h1", top[0].HypothesisID)
	require.NotNil(t, top[0].Score)
	assert.Greater(t, *top[0].Score, 0.0)
}

func TestRankHypothesesRejectsEvidenceBeyondLastLine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("line1\n"), 0o644))

	hypotheses := []types.TriageHypothesis{
		{HypothesisID: "h1", Mechanism: "m", Evidence: []types.TriageEvidence{{File: "a.py", Line: 99}}, WorkerID: "w1"},
	}
	assert.Empty(t, RankHypotheses(root, hypotheses, ""))
}

func TestRankHypothesesRejectsSnippetMismatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("hello world\n"), 0o644))

	hypotheses := []types.TriageHypothesis{
		{HypothesisID: "h1", Mechanism: "m", Evidence: []types.TriageEvidence{{File: "a.py", Line: 1, Snippet: "goodbye"}}, WorkerID: "w1"},
	}
	assert.Empty(t, RankHypotheses(root, hypotheses, ""))
}

func TestRankHypothesesRejectsPathTraversal(t *testing.T) {
	root := t.TempDir()
	hypotheses := []types.TriageHypothesis{
		{HypothesisID: "h1", Mechanism: "m", Evidence: []types.TriageEvidence{{File: "../../../etc/passwd", Line: 1}}, WorkerID: "w1"},
	}
	assert.Empty(t, RankHypotheses(root, hypotheses, ""))
}

func TestAgreementWeightCountsDistinctWorkers(t *testing.T) {
	all := []types.TriageHypothesis{
		{Mechanism: "Off-by-one in loop bound", WorkerID: "w1"},
		{Mechanism: "off-by-one in loop bound", WorkerID: "w2"},
		{Mechanism: "unrelated", WorkerID: "w3"},
	}
	weight := agreementWeight("Off-by-one in loop bound", all)
	assert.InDelta(t, 2.0/3.0, weight, 0.001)
}

func TestReplayConsistencyScoresWordOverlap(t *testing.T) {
	score := replayConsistency("index overflow in buffer parser", "traceback: buffer overflow at index 12")
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestReplayConsistencyZeroWhenEitherSideEmpty(t *testing.T) {
	assert.Equal(t, 0.0, replayConsistency("", "some text"))
	assert.Equal(t, 0.0, replayConsistency("mechanism", ""))
}

func TestTopHypothesesLimitsAndPassesThroughWhenShorter(t *testing.T) {
	ranked := []types.TriageHypothesis{{HypothesisID: "a"}, {HypothesisID: "b"}, {HypothesisID: "c"}}
	assert.Len(t, TopHypotheses(ranked, 2), 2)
	assert.Len(t, TopHypotheses(ranked, 10), 3)
}

func scorePtr(f float64) *float64 { return &f }

func TestDisagreementHighRequiresMultipleMechanismsAndCloseScores(t *testing.T) {
	close := []types.TriageHypothesis{
		{HypothesisID: "a", Mechanism: "mechanism one", Score: scorePtr(0.80)},
		{HypothesisID: "b", Mechanism: "mechanism two", Score: scorePtr(0.70)},
	}
	assert.True(t, DisagreementHigh(close))

	far := []types.TriageHypothesis{
		{HypothesisID: "a", Mechanism: "mechanism one", Score: scorePtr(0.95)},
		{HypothesisID: "b", Mechanism: "mechanism two", Score: scorePtr(0.10)},
	}
	assert.False(t, DisagreementHigh(far))
}

func TestDisagreementHighFalseWithSingleMechanism(t *testing.T) {
	single := []types.TriageHypothesis{
		{HypothesisID: "a", Mechanism: "same mechanism", Score: scorePtr(0.9)},
		{HypothesisID: "b", Mechanism: "same mechanism", Score: scorePtr(0.85)},
	}
	assert.False(t, DisagreementHigh(single))
}

func TestDisagreementHighFalseWhenEmpty(t *testing.T) {
	assert.False(t, DisagreementHigh(nil))
}
