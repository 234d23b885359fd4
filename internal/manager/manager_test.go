package manager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codorch/codorch/internal/config"
	"github.com/codorch/codorch/internal/issue"
	"github.com/codorch/codorch/internal/types"
)

func TestWorkerCountSequenceDefaultRange(t *testing.T) {
	m := &Manager{cfg: Config{Manager: config.Config{MinWorkers: 2, MaxWorkers: 6}}}
	assert.Equal(t, []int{2, 4, 6}, m.workerCountSequence())
}

func TestWorkerCountSequenceNarrowRange(t *testing.T) {
	m := &Manager{cfg: Config{Manager: config.Config{MinWorkers: 3, MaxWorkers: 5}}}
	assert.Equal(t, []int{3, 4, 5}, m.workerCountSequence())
}

func TestWorkerCountSequenceMinEqualsMax(t *testing.T) {
	m := &Manager{cfg: Config{Manager: config.Config{MinWorkers: 4, MaxWorkers: 4}}}
	assert.Equal(t, []int{4}, m.workerCountSequence())
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	runsRoot := t.TempDir()
	repoPath := t.TempDir()

	cfg := Config{
		RunID:    "run1",
		IssueURL: "https://github.com/acme/widgets/issues/42",
		Manager:  config.Defaults(repoPath),
	}
	cfg.Manager.RunsRoot = runsRoot

	m := New(cfg)
	require.NoError(t, m.store.InitializeContract())
	return m, runsRoot
}

func TestAppendDiagnosticAccumulates(t *testing.T) {
	m, _ := newTestManager(t)

	m.appendDiagnostic("first problem")
	m.appendDiagnostic("second problem")

	var decision map[string]interface{}
	require.NoError(t, m.store.ReadJSON(m.store.Paths.DecisionJSON, &decision))

	diagnostics, ok := decision["diagnostics"].([]interface{})
	require.True(t, ok)
	require.Len(t, diagnostics, 2)
	assert.Equal(t, "first problem", diagnostics[0])
	assert.Equal(t, "second problem", diagnostics[1])
}

func TestFinalizeWritesDecisionFinalMDAndRunDone(t *testing.T) {
	m, _ := newTestManager(t)

	decision := types.RunDecision{
		Status:         types.StatusOK,
		SelectedReproCandidateID: "w1-candidate",
		Rationale:      "selected highest-scoring deterministic reproducer",
		TopHypotheses:  []string{"off-by-one in parser"},
		NextFixTargets: []string{"pkg/parse.go:42"},
		Diagnostics:    []string{"worker w2 timed out"},
	}

	result := m.finalize(decision, map[string]interface{}{"repro": map[string]interface{}{"path": "x"}})
	assert.NotEmpty(t, result.CreatedAt)

	finalBytes, err := os.ReadFile(m.store.Paths.FinalMD)
	require.NoError(t, err)
	final := string(finalBytes)
	assert.Contains(t, final, "run run1")
	assert.Contains(t, final, "status: ok")
	assert.Contains(t, final, "w1-candidate")
	assert.Contains(t, final, "off-by-one in parser")
	assert.Contains(t, final, "pkg/parse.go:42")
	assert.Contains(t, final, "worker w2 timed out")

	var runDone map[string]interface{}
	require.NoError(t, m.store.ReadJSON(m.store.Paths.RunDoneJSON, &runDone))
	assert.Equal(t, "run1", runDone["run_id"])
	assert.Equal(t, "ok", runDone["status"])

	var decisionOnDisk map[string]interface{}
	require.NoError(t, m.store.ReadJSON(m.store.Paths.DecisionJSON, &decisionOnDisk))
	assert.Equal(t, "w1-candidate", decisionOnDisk["selected_repro_candidate_id"])
	reproExtra, ok := decisionOnDisk["repro"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "x", reproExtra["path"])
}

func TestFinalizeNeedsHumanWithNoHypothesesWritesNoneLine(t *testing.T) {
	m, _ := newTestManager(t)

	decision := m.finalize(types.RunDecision{
		Status:    types.StatusNeedsHuman,
		Rationale: "preflight failed",
	}, nil)
	assert.Equal(t, types.StatusNeedsHuman, decision.Status)

	finalBytes, err := os.ReadFile(m.store.Paths.FinalMD)
	require.NoError(t, err)
	assert.Contains(t, string(finalBytes), "1. none")
}

// githubRedirectTransport rewrites every outgoing request's scheme/host to
// point at a local test server, regardless of what URL the caller built --
// used to exercise issue.FetchIssueJSON's fixed api.github.com target
// without reaching the network.
type githubRedirectTransport struct {
	target *url.URL
}

func (t *githubRedirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	redirected := req.Clone(req.Context())
	redirected.URL.Scheme = t.target.Scheme
	redirected.URL.Host = t.target.Host
	redirected.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(redirected)
}

// testIssueFetcher builds an issueFetcher that resolves any github issue URL
// against a local test server instead of api.github.com.
func testIssueFetcher(t *testing.T, serverURL string) func(issueURL string) (*issue.GitHubIssue, error) {
	t.Helper()
	target, err := url.Parse(serverURL)
	require.NoError(t, err)

	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &githubRedirectTransport{target: target},
	}
	return func(issueURL string) (*issue.GitHubIssue, error) {
		return issue.FetchIssueJSON(client, issueURL)
	}
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t.com", "GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("git", "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi\n"), 0o644))
	run("git", "add", "a.txt")
	run("git", "commit", "-q", "-m", "init")
	return dir
}

func TestRunEndsNeedsHumanWhenNoWorkerProducesACandidate(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"title":  "TypeError: cannot read property of undefined",
			"body":   `Running the script raises TypeError: cannot read property of undefined every time.`,
			"labels": []map[string]string{},
		})
	}))
	defer server.Close()

	repoPath := initTestRepo(t)
	runsRoot := t.TempDir()

	cfg := Config{
		RunID:    "run-e2e",
		IssueURL: "https://github.com/acme/widgets/issues/7",
		Manager:  config.Defaults(repoPath),
	}
	cfg.Manager.RunsRoot = runsRoot
	cfg.Manager.MinWorkers = 2
	cfg.Manager.MaxWorkers = 2
	cfg.Manager.TimeoutSec = 3
	cfg.Manager.PollIntervalSec = 1
	cfg.VCSBinary = "git"
	// SessionBinary left empty: selects the pty fallback backend, so this
	// test doesn't require a real tmux install.

	m := New(cfg)
	m.issueFetcher = testIssueFetcher(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	decision, err := m.Run(ctx)
	require.NoError(t, err)

	// No "codex" binary exists in the test environment, so every launched
	// worker's session exits immediately without writing an output file:
	// the run correctly falls back to needs-human rather than crashing.
	assert.Equal(t, types.StatusNeedsHuman, decision.Status)
	assert.Contains(t, decision.Rationale, "acceptance gate")

	_, err = os.Stat(m.store.Paths.FinalMD)
	require.NoError(t, err)
	_, err = os.Stat(m.store.Paths.SessionsJSON)
	require.NoError(t, err)

	var sessions map[string]interface{}
	require.NoError(t, m.store.ReadJSON(m.store.Paths.SessionsJSON, &sessions))
	workers, ok := sessions["workers"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, workers, 2)
}

func TestRunNeedsHumanWhenIssueHasNoFailureSignal(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"title":  "Please improve the docs",
			"body":   "The README is a bit confusing in section 3.",
			"labels": []map[string]string{},
		})
	}))
	defer server.Close()

	repoPath := initTestRepo(t)
	runsRoot := t.TempDir()

	cfg := Config{
		RunID:    "run-docs",
		IssueURL: "https://github.com/acme/widgets/issues/8",
		Manager:  config.Defaults(repoPath),
	}
	cfg.Manager.RunsRoot = runsRoot
	cfg.VCSBinary = "git"

	m := New(cfg)
	m.issueFetcher = testIssueFetcher(t, server.URL)

	decision, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusNeedsHuman, decision.Status)
	assert.Contains(t, strings.ToLower(decision.Rationale), "failure signal")
}
