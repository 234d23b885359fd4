package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codorch/codorch/internal/artifact"
	"github.com/codorch/codorch/internal/types"
)

func TestRequireSessionsMissingRunReturnsError(t *testing.T) {
	runsRoot := t.TempDir()
	_, err := requireSessions(runsRoot, "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-run")
}

func TestRequireSessionsReadsWrittenDoc(t *testing.T) {
	runsRoot := t.TempDir()
	store := artifact.NewStore(runsRoot, "run1")
	require.NoError(t, store.InitializeContract())

	require.NoError(t, store.WriteJSON(store.Paths.SessionsJSON, map[string]interface{}{
		"manager": map[string]interface{}{"session_name": "codorch-run1-manager"},
		"workers": map[string]types.WorkerMetadata{
			"w1": {SessionName: "codorch-run1-w1", Role: types.RoleReproBuilder, Status: types.WorkerFinished},
		},
	}))

	doc, err := requireSessions(runsRoot, "run1")
	require.NoError(t, err)
	assert.Equal(t, "codorch-run1-manager", doc.Manager.SessionName)
	assert.Equal(t, "codorch-run1-w1", doc.Workers["w1"].SessionName)
}

func TestResolveSessionNameManagerAndWorker(t *testing.T) {
	doc := sessionsDoc{Workers: map[string]types.WorkerMetadata{
		"w1": {SessionName: "codorch-run1-w1"},
	}}
	doc.Manager.SessionName = "codorch-run1-manager"

	assert.Equal(t, "codorch-run1-manager", resolveSessionName(doc, "manager"))
	assert.Equal(t, "codorch-run1-w1", resolveSessionName(doc, "w1"))
	assert.Equal(t, "", resolveSessionName(doc, "w99"))
}

func TestRunsRootFlagPrefersExplicit(t *testing.T) {
	assert.Equal(t, "/explicit", runsRootFlag("/explicit", "/config"))
	assert.Equal(t, "/config", runsRootFlag("", "/config"))
}
