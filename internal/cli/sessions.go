package cli

import (
	"fmt"
	"os"

	"github.com/codorch/codorch/internal/artifact"
	"github.com/codorch/codorch/internal/types"
)

// sessionsDoc mirrors the shape Manager.writeSessions persists to
// sessions.json: the manager's own session identity plus one
// WorkerMetadata entry per launched worker.
type sessionsDoc struct {
	Manager struct {
		SessionName string `json:"session_name"`
		RunID       string `json:"run_id"`
		IssueURL    string `json:"issue_url"`
	} `json:"manager"`
	Workers map[string]types.WorkerMetadata `json:"workers"`
}

// requireSessions loads runID's sessions.json, failing with a message that
// names the run if the run directory was never initialized.
func requireSessions(runsRoot, runID string) (sessionsDoc, error) {
	store := artifact.NewStore(runsRoot, runID)

	var doc sessionsDoc
	if _, err := os.Stat(store.Paths.SessionsJSON); err != nil {
		return doc, fmt.Errorf("no sessions recorded for run %q under %s", runID, runsRoot)
	}
	if err := store.ReadJSON(store.Paths.SessionsJSON, &doc); err != nil {
		return doc, fmt.Errorf("cli: read sessions for run %q: %w", runID, err)
	}
	return doc, nil
}

// resolveSessionName finds the tmux session name for "manager" or a worker
// ID (e.g. "w1"); returns "" if the name doesn't match anything recorded.
func resolveSessionName(doc sessionsDoc, worker string) string {
	if worker == "manager" {
		return doc.Manager.SessionName
	}
	if meta, ok := doc.Workers[worker]; ok {
		return meta.SessionName
	}
	return ""
}

// runsRootFlag resolves the --runs-root persistent flag against the
// config file default, matching run.go's own precedence.
func runsRootFlag(explicit, configRunsRoot string) string {
	if explicit != "" {
		return explicit
	}
	return configRunsRoot
}
