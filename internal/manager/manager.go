// Package manager implements the top-level run orchestrator (C11): it
// drives preflight, issue normalization, the REPRO_BUILDER and TRIAGER
// worker waves, candidate validation/minimization, triage ranking, and the
// final decision/final.md/run_done.json emission described across spec.md.
//
// Manager owns no business logic of its own beyond sequencing — every
// decision (scoring, ranking, signal extraction, state transitions) lives
// in the package that specializes in it. Manager just wires them together
// in the order spec.md §4 describes.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codorch/codorch/internal/artifact"
	"github.com/codorch/codorch/internal/command"
	"github.com/codorch/codorch/internal/config"
	"github.com/codorch/codorch/internal/issue"
	"github.com/codorch/codorch/internal/ndjson"
	"github.com/codorch/codorch/internal/preflight"
	"github.com/codorch/codorch/internal/repro"
	"github.com/codorch/codorch/internal/session"
	"github.com/codorch/codorch/internal/supervision"
	"github.com/codorch/codorch/internal/triage"
	"github.com/codorch/codorch/internal/types"
	"github.com/codorch/codorch/internal/worker"
	"github.com/codorch/codorch/internal/worktree"
)

// Config is the fully-resolved input to one Manager run: the persisted
// manager config plus the per-invocation run identity and the external
// binaries preflight must validate.
type Config struct {
	RunID    string
	IssueURL string
	Manager  config.Config

	SessionBinary    string // e.g. "tmux"; empty selects the pty fallback backend
	VCSBinary        string
	AgentBinary      string
	AgentAuthCommand []string
	AgentAuthTimeout time.Duration

	Logger *slog.Logger
}

// Manager drives one run end to end.
type Manager struct {
	cfg        Config
	logger     *slog.Logger
	runner     *command.Runner
	store      *artifact.Store
	sessions   session.Supervisor
	worktrees  *worktree.Manager
	supervisor *supervision.Loop

	// issueFetcher performs the GitHub issue lookup. Swappable so tests can
	// point it at a local server instead of api.github.com.
	issueFetcher func(issueURL string) (*issue.GitHubIssue, error)

	// managerTelemetry aggregates token/turn usage from the manager's own
	// agent-CLI invocations (currently just semantic reduction), kept
	// separate from per-worker usage (spec.md §4.11 "model routing").
	managerTelemetry ndjson.TokenUsage
}

// New wires a Manager's collaborators. It does not touch the filesystem;
// call Run to materialize the run directory and execute the pipeline.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	runner := command.NewRunner()
	store := artifact.NewStore(cfg.Manager.RunsRoot, cfg.RunID)

	var sessions session.Supervisor
	if cfg.SessionBinary != "" {
		sessions = session.NewTmuxSupervisor(runner, cfg.Manager.RepoPath)
	} else {
		sessions = session.NewPtySupervisor()
	}

	stallTimeout := time.Duration(cfg.Manager.TimeoutSec) * time.Second / 3
	if stallTimeout < 45*time.Second {
		stallTimeout = 45 * time.Second
	}

	m := &Manager{
		cfg:        cfg,
		logger:     cfg.Logger,
		runner:     runner,
		store:      store,
		sessions:   sessions,
		worktrees:  worktree.NewManager(runner, cfg.Manager.RepoPath),
		supervisor: supervision.NewLoop(sessions, stallTimeout),
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	m.issueFetcher = func(issueURL string) (*issue.GitHubIssue, error) {
		return issue.FetchIssueJSON(httpClient, issueURL)
	}
	return m
}

// Paths exposes the run directory layout, mostly for the CLI's status/attach
// subcommands.
func (m *Manager) Paths() artifact.Paths {
	return m.store.Paths
}

func (m *Manager) sessionName(workerID string) string {
	if workerID == "" {
		return fmt.Sprintf("codorch-%s-manager", m.cfg.RunID)
	}
	return fmt.Sprintf("codorch-%s-%s", m.cfg.RunID, workerID)
}

// workerCountSequence computes the ascending, deduplicated wave sizes to
// try: min_workers, then 4 and 6 if they fall strictly between min and max,
// then max_workers itself.
func (m *Manager) workerCountSequence() []int {
	seen := map[int]bool{m.cfg.Manager.MinWorkers: true}
	for _, size := range []int{4, 6} {
		if m.cfg.Manager.MinWorkers < size && size <= m.cfg.Manager.MaxWorkers {
			seen[size] = true
		}
	}
	seen[m.cfg.Manager.MaxWorkers] = true

	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (m *Manager) writeSessions(workers map[string]types.WorkerMetadata) {
	payload := map[string]interface{}{
		"manager": map[string]interface{}{
			"session_name":        m.sessionName(""),
			"run_id":              m.cfg.RunID,
			"issue_url":           m.cfg.IssueURL,
			"model":               m.cfg.Manager.ManagerModel,
			"turns":               m.managerTelemetry.Turns,
			"input_tokens":        m.managerTelemetry.InputTokens,
			"cached_input_tokens": m.managerTelemetry.CachedInputTokens,
			"output_tokens":       m.managerTelemetry.OutputTokens,
		},
		"workers": workers,
	}
	if err := m.store.WriteJSON(m.store.Paths.SessionsJSON, payload); err != nil {
		m.logger.Warn("failed to write sessions.json", "error", err)
	}
}

// launchWorkers materializes one wave: a worktree, a role-specific prompt, a
// launch script, and a live session per worker. It returns the worker
// metadata map and the list of output files the wave is expected to write.
func (m *Manager) launchWorkers(ctx context.Context, role types.Role, count int, spec types.IssueSpec, minimalRepro string) (map[string]types.WorkerMetadata, []string, error) {
	workers := make(map[string]types.WorkerMetadata, count)
	outputPaths := make([]string, 0, count)

	for idx := 1; idx <= count; idx++ {
		workerID := fmt.Sprintf("w%d", idx)
		sessionName := m.sessionName(workerID)

		var outputPath, scriptPath string
		if role == types.RoleReproBuilder {
			outputPath = filepath.Join(m.store.Paths.ReproCandidatesDir, workerID+".json")
			scriptPath = filepath.Join(m.store.Paths.ScriptsDir, "repro_builder-"+workerID+".sh")
		} else {
			outputPath = filepath.Join(m.store.Paths.TriageDir, workerID+".json")
			scriptPath = filepath.Join(m.store.Paths.ScriptsDir, "triager-"+workerID+".sh")
		}
		outputPaths = append(outputPaths, outputPath)

		worktreePath := filepath.Join(os.TempDir(), fmt.Sprintf("codorch-%s-%s", m.cfg.RunID, workerID))
		if err := m.worktrees.Create(ctx, workerID, worktreePath); err != nil {
			return nil, nil, fmt.Errorf("manager: create worktree for %s: %w", workerID, err)
		}

		var prompt string
		var err error
		if role == types.RoleReproBuilder {
			prompt, err = worker.BuildReproPrompt(spec, workerID)
		} else {
			prompt, err = worker.BuildTriagePrompt(spec, workerID, minimalRepro, spec.TargetPaths)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("manager: build prompt for %s: %w", workerID, err)
		}

		telemetryName := "worker-triager-" + workerID + ".jsonl"
		if role == types.RoleReproBuilder {
			telemetryName = "worker-repro_builder-" + workerID + ".jsonl"
		}
		telemetryPath := filepath.Join(m.store.Paths.TelemetryDir, telemetryName)
		launch, err := worker.BuildLaunchScript(prompt, outputPath, scriptPath, worktreePath, m.cfg.Manager.WorkerModel, telemetryPath)
		if err != nil {
			return nil, nil, fmt.Errorf("manager: build launch script for %s: %w", workerID, err)
		}

		if m.sessions.SessionExists(ctx, sessionName) {
			m.sessions.KillSession(ctx, sessionName)
		}
		if err := m.sessions.CreateSession(ctx, sessionName, m.cfg.Manager.RepoPath, []string{launch.ScriptPath}); err != nil {
			return nil, nil, fmt.Errorf("manager: create session for %s: %w", workerID, err)
		}

		workers[workerID] = types.WorkerMetadata{
			SessionName:   sessionName,
			Role:          role,
			WorktreePath:  worktreePath,
			OutputPath:    outputPath,
			ScriptPath:    launch.ScriptPath,
			TelemetryPath: telemetryPath,
			Status:        types.WorkerRunning,
		}
	}

	return workers, outputPaths, nil
}

// waitForWorkers polls every session in the wave through the supervision
// loop until all sessions have ended, a worker's watch gives up, or the
// wave's overall timeout elapses, in which case any still-active sessions
// are killed outright.
func (m *Manager) waitForWorkers(ctx context.Context, workers map[string]types.WorkerMetadata) map[string]types.WorkerMetadata {
	watches := make(map[string]supervision.Watch, len(workers))
	for workerID, meta := range workers {
		watches[workerID] = supervision.NewWatch(meta.SessionName, meta.ScriptPath)
	}

	start := time.Now()
	pollInterval := time.Duration(m.cfg.Manager.PollIntervalSec) * time.Second
	timeout := time.Duration(m.cfg.Manager.TimeoutSec) * time.Second

	for {
		var active []string
		for workerID, watch := range watches {
			watch = m.supervisor.Tick(ctx, watch, m.cfg.Manager.RepoPath, []string{watch.ScriptPath}, time.Now())
			watches[workerID] = watch

			meta := workers[workerID]
			if watch.Failed {
				meta.Status = types.WorkerFailed
				workers[workerID] = meta
				continue
			}

			if m.sessions.SessionExists(ctx, watch.SessionName) {
				active = append(active, workerID)
			} else {
				meta.Status = types.WorkerFinished
				workers[workerID] = meta
			}
		}

		if len(active) == 0 {
			break
		}
		if time.Since(start) >= timeout {
			for _, workerID := range active {
				m.sessions.KillSession(ctx, watches[workerID].SessionName)
				meta := workers[workerID]
				meta.Status = types.WorkerTimeout
				workers[workerID] = meta
			}
			break
		}
		time.Sleep(pollInterval)
	}

	m.aggregateTelemetry(workers)
	return workers
}

// aggregateTelemetry folds each worker's telemetry JSONL (if any) into its
// WorkerMetadata's token/turn counters. Best-effort: a worker that never
// wrote telemetry keeps its zero counters.
func (m *Manager) aggregateTelemetry(workers map[string]types.WorkerMetadata) {
	for workerID, meta := range workers {
		if meta.TelemetryPath == "" {
			continue
		}
		usage, err := ndjson.AggregateTelemetry(meta.TelemetryPath)
		if err != nil {
			m.logger.Warn("telemetry aggregation failed", "worker_id", workerID, "error", err)
			continue
		}
		meta.Turns = usage.Turns
		meta.InputTokens = usage.InputTokens
		meta.CachedInputTokens = usage.CachedInputTokens
		meta.OutputTokens = usage.OutputTokens
		workers[workerID] = meta
	}
}

// validateCandidates parses every REPRO_BUILDER output file, runs the
// replay gate, scores the survivors, and persists the enriched candidate
// back to its output file. Parse/validate failures become diagnostics
// rather than aborting the wave.
func (m *Manager) validateCandidates(ctx context.Context, spec types.IssueSpec, outputPaths []string) ([]types.ReproCandidate, []string) {
	var candidates []types.ReproCandidate
	var diagnostics []string

	opts := repro.ValidationOptions{
		Runs:          m.cfg.Manager.ReproValidationRuns,
		MinMatches:    m.cfg.Manager.ReproMinMatches,
		TimeoutSec:    minInt(60, m.cfg.Manager.TimeoutSec),
		PythonVersion: m.cfg.Manager.ValidationPythonVersion,
	}

	for _, outputPath := range outputPaths {
		workerID := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))

		candidate, err := repro.ParseCandidate(outputPath)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("failed to parse candidate from %s: %v", filepath.Base(outputPath), err))
			continue
		}
		if candidate == nil {
			continue
		}
		candidate.WorkerID = workerID

		scriptPath := filepath.Join(m.store.Paths.ReproCandidatesDir, candidate.CandidateID+"."+candidate.FileExtension)
		validation, err := repro.ValidateCandidate(ctx, m.runner, *candidate, scriptPath, m.cfg.Manager.RepoPath, spec.ExpectedFailureSignals, opts)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("failed to validate candidate %s: %v", candidate.CandidateID, err))
			continue
		}
		candidate.Validation = &validation
		score := repro.ScoreCandidate(*candidate, validation, spec.ExpectedFailureSignals)
		candidate.Score = &score

		if err := m.store.WriteJSON(outputPath, candidate); err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("failed to persist candidate %s: %v", candidate.CandidateID, err))
		}
		candidates = append(candidates, *candidate)
	}

	return candidates, diagnostics
}

// appendDiagnostic folds one diagnostic line into decision.json's running
// list, preserving whatever else is already recorded there.
func (m *Manager) appendDiagnostic(text string) {
	var existing map[string]interface{}
	if err := m.store.ReadJSON(m.store.Paths.DecisionJSON, &existing); err != nil || existing == nil {
		existing = map[string]interface{}{}
	}

	var diagnostics []interface{}
	if raw, ok := existing["diagnostics"]; ok {
		if list, ok := raw.([]interface{}); ok {
			diagnostics = list
		}
	}
	diagnostics = append(diagnostics, text)
	existing["diagnostics"] = diagnostics

	if err := m.store.WriteJSON(m.store.Paths.DecisionJSON, existing); err != nil {
		m.logger.Warn("failed to append diagnostic", "error", err)
	}
}

func (m *Manager) cleanupWorktrees(ctx context.Context, workers map[string]types.WorkerMetadata) {
	for _, meta := range workers {
		if meta.WorktreePath == "" {
			continue
		}
		if _, err := os.Stat(meta.WorktreePath); err != nil {
			continue
		}
		if err := m.worktrees.Remove(ctx, meta.WorktreePath); err != nil {
			m.logger.Warn("worktree cleanup failed", "path", meta.WorktreePath, "error", err)
		}
	}
}

// finalize writes decision.json, final.md, and run_done.json and returns
// the decision unchanged, stamping CreatedAt.
func (m *Manager) finalize(decision types.RunDecision, extra map[string]interface{}) types.RunDecision {
	decision.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	payload := map[string]interface{}{
		"status":                      decision.Status,
		"selected_repro_candidate_id": decision.SelectedReproCandidateID,
		"rationale":                   decision.Rationale,
		"top_hypotheses":              decision.TopHypotheses,
		"next_fix_targets":            decision.NextFixTargets,
		"diagnostics":                 decision.Diagnostics,
		"created_at":                  decision.CreatedAt,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := m.store.WriteJSON(m.store.Paths.DecisionJSON, payload); err != nil {
		m.logger.Error("failed to write decision.json", "error", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# codorch run %s\n\n", m.cfg.RunID)
	fmt.Fprintf(&b, "- issue: %s\n", m.cfg.IssueURL)
	fmt.Fprintf(&b, "- status: %s\n", decision.Status)
	selected := decision.SelectedReproCandidateID
	if selected == "" {
		selected = "none"
	}
	fmt.Fprintf(&b, "- selected repro candidate: %s\n\n", selected)
	b.WriteString("## Rationale\n")
	b.WriteString(decision.Rationale)
	b.WriteString("\n\n## Top hypotheses\n")
	if len(decision.TopHypotheses) > 0 {
		for idx, h := range decision.TopHypotheses {
			fmt.Fprintf(&b, "%d. %s\n", idx+1, h)
		}
	} else {
		b.WriteString("1. none\n")
	}
	if len(decision.NextFixTargets) > 0 {
		b.WriteString("\n## Suggested next fix targets\n")
		for idx, t := range decision.NextFixTargets {
			fmt.Fprintf(&b, "%d. %s\n", idx+1, t)
		}
	}
	if len(decision.Diagnostics) > 0 {
		b.WriteString("\n## Diagnostics\n")
		for _, d := range decision.Diagnostics {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	if err := m.store.WriteFile(m.store.Paths.FinalMD, []byte(b.String())); err != nil {
		m.logger.Error("failed to write final.md", "error", err)
	}

	runDone := map[string]interface{}{
		"run_id":        m.cfg.RunID,
		"status":        decision.Status,
		"decision_json": m.store.Paths.DecisionJSON,
		"final_md":      m.store.Paths.FinalMD,
		"completed_at":  decision.CreatedAt,
	}
	if err := m.store.WriteJSON(m.store.Paths.RunDoneJSON, runDone); err != nil {
		m.logger.Error("failed to write run_done.json", "error", err)
	}

	return decision
}

// Run executes one full orchestration pass: preflight, issue normalization,
// the REPRO_BUILDER wave loop, candidate selection and minimization, the
// TRIAGER wave loop, and the final decision. It never returns a non-nil
// error for a run that completes (even as needs-human) — the error return
// is reserved for infrastructure failures that prevent writing any
// artifacts at all (e.g. the run directory itself can't be created).
func (m *Manager) Run(ctx context.Context) (types.RunDecision, error) {
	if err := m.store.InitializeContract(); err != nil {
		return types.RunDecision{}, fmt.Errorf("manager: initialize run contract: %w", err)
	}

	var diagnostics []string

	preflightResult := preflight.Run(ctx, m.runner, preflight.Config{
		RepoPath:         m.cfg.Manager.RepoPath,
		SessionBinary:    m.cfg.SessionBinary,
		VCSBinary:        m.cfg.VCSBinary,
		AgentBinary:      m.cfg.AgentBinary,
		AgentAuthCommand: m.cfg.AgentAuthCommand,
		AgentAuthTimeout: m.cfg.AgentAuthTimeout,
	})
	if err := m.store.WriteJSON(m.store.Paths.DecisionJSON, map[string]interface{}{
		"preflight":   preflightResult.Checks,
		"diagnostics": []string{},
	}); err != nil {
		m.logger.Warn("failed to seed decision.json with preflight results", "error", err)
	}
	if !preflightResult.Passed {
		for _, check := range preflightResult.Checks {
			if !check.Passed {
				diagnostics = append(diagnostics, fmt.Sprintf("preflight failed: %s -> %s", check.Name, check.Details))
			}
		}
		return m.finalize(types.RunDecision{
			Status:      types.StatusNeedsHuman,
			Rationale:   "preflight failed",
			Diagnostics: diagnostics,
		}, nil), nil
	}

	gh, err := m.issueFetcher(m.cfg.IssueURL)
	if err != nil {
		return m.finalize(types.RunDecision{
			Status:      types.StatusNeedsHuman,
			Rationale:   "issue parsing failed",
			Diagnostics: []string{err.Error()},
		}, nil), nil
	}

	spec, err := issue.NormalizeIssueSpec(m.cfg.IssueURL, gh)
	if err != nil {
		return m.finalize(types.RunDecision{
			Status:      types.StatusNeedsHuman,
			Rationale:   "issue parsing failed",
			Diagnostics: []string{err.Error()},
		}, nil), nil
	}

	if err := m.store.WriteJSON(m.store.Paths.IssueJSON, spec); err != nil {
		m.logger.Warn("failed to persist issue spec", "error", err)
	}

	if spec.Status != types.StatusOK {
		reason := spec.NeedsHumanReason
		if reason == "" {
			reason = "unknown issue spec error"
		}
		return m.finalize(types.RunDecision{
			Status:      types.StatusNeedsHuman,
			Rationale:   "issue lacks strong machine-testable failure signals",
			Diagnostics: []string{reason},
		}, nil), nil
	}

	var acceptedCandidates []types.ReproCandidate
	var workers map[string]types.WorkerMetadata

	for _, count := range m.workerCountSequence() {
		reproWorkers, outputPaths, err := m.launchWorkers(ctx, types.RoleReproBuilder, count, spec, "")
		if err != nil {
			diagnostics = append(diagnostics, err.Error())
			continue
		}
		workers = reproWorkers
		m.writeSessions(workers)
		workers = m.waitForWorkers(ctx, workers)
		m.writeSessions(workers)

		var waveDiagnostics []string
		acceptedCandidates, waveDiagnostics = m.validateCandidates(ctx, spec, outputPaths)
		for _, d := range waveDiagnostics {
			m.appendDiagnostic(d)
			diagnostics = append(diagnostics, d)
		}

		if repro.ChooseBestCandidate(acceptedCandidates) != nil {
			break
		}
	}

	best := repro.ChooseBestCandidate(acceptedCandidates)
	if best == nil {
		m.cleanupWorktrees(ctx, workers)
		return m.finalize(types.RunDecision{
			Status:      types.StatusNeedsHuman,
			Rationale:   fmt.Sprintf("no deterministic reproducer met the acceptance gate (>=%d/%d runs)", m.cfg.Manager.ReproMinMatches, m.cfg.Manager.ReproValidationRuns),
			Diagnostics: diagnostics,
		}, nil), nil
	}

	opts := repro.ValidationOptions{
		Runs:          m.cfg.Manager.ReproValidationRuns,
		MinMatches:    m.cfg.Manager.ReproMinMatches,
		TimeoutSec:    minInt(60, m.cfg.Manager.TimeoutSec),
		PythonVersion: m.cfg.Manager.ValidationPythonVersion,
	}

	minimalScriptPath := filepath.Join(m.store.Paths.ReproCandidatesDir, "minimize-"+best.CandidateID+"."+best.FileExtension)
	reducer := repro.NewSemanticReducer(m.runner, spec, m.cfg.Manager.RepoPath, m.cfg.Manager.ManagerModel, m.store.Paths.SemanticReduceOutput, m.store.Paths.ManagerSemanticReduceJSONL)
	minimizedScript, err := repro.Minimize(ctx, m.runner, *best, minimalScriptPath, m.cfg.Manager.RepoPath, spec.ExpectedFailureSignals, opts, reducer)
	if err != nil {
		minimizedScript = best.Script
	}
	if usage, err := ndjson.AggregateTelemetry(m.store.Paths.ManagerSemanticReduceJSONL); err != nil {
		m.logger.Warn("manager telemetry aggregation failed", "error", err)
	} else {
		m.managerTelemetry = usage
	}
	m.writeSessions(workers)

	minimized := *best
	minimized.Script = minimizedScript
	finalValidation, err := repro.ValidateCandidate(ctx, m.runner, minimized, minimalScriptPath, m.cfg.Manager.RepoPath, spec.ExpectedFailureSignals, opts)
	if err != nil || !finalValidation.Passed {
		minimized = *best
	} else {
		minimized.Validation = &finalValidation
	}

	minimalReproPath := m.store.MinimalReproPath(minimized.FileExtension)
	if err := m.store.WriteFile(minimalReproPath, []byte(minimized.Script)); err != nil {
		m.logger.Error("failed to write minimal repro script", "error", err)
	}
	if err := m.store.WriteJSON(m.store.Paths.SelectedCandidateJSON, minimized); err != nil {
		m.logger.Error("failed to write selected candidate", "error", err)
	}

	var triageWorkers map[string]types.WorkerMetadata
	var triageHypotheses []types.TriageHypothesis

	for _, count := range m.workerCountSequence() {
		waveWorkers, triageOutputPaths, err := m.launchWorkers(ctx, types.RoleTriager, count, spec, minimized.Script)
		if err != nil {
			diagnostics = append(diagnostics, err.Error())
			continue
		}
		triageWorkers = waveWorkers
		m.writeSessions(triageWorkers)
		triageWorkers = m.waitForWorkers(ctx, triageWorkers)
		m.writeSessions(triageWorkers)

		var waveHypotheses []types.TriageHypothesis
		for _, outputPath := range triageOutputPaths {
			workerID := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
			parsed, err := triage.ParseTriageOutput(workerID, outputPath)
			if err != nil {
				m.appendDiagnostic(fmt.Sprintf("failed to parse triage output from %s: %v", filepath.Base(outputPath), err))
				continue
			}
			waveHypotheses = append(waveHypotheses, parsed...)
		}

		ranked := triage.RankHypotheses(m.cfg.Manager.RepoPath, waveHypotheses, minimized.Script)
		disagreementHigh := triage.DisagreementHigh(ranked)

		triageHypotheses = ranked
		if len(ranked) > 0 && (!disagreementHigh || count >= m.cfg.Manager.MaxWorkers) {
			break
		}
		if len(ranked) == 0 && count >= m.cfg.Manager.MaxWorkers {
			break
		}
	}

	top := triage.TopHypotheses(triageHypotheses, 3)

	if err := m.store.WriteJSON(m.store.Paths.TriageHypothesesJSON, map[string]interface{}{
		"hypotheses": triageHypotheses,
		"top":        top,
	}); err != nil {
		m.logger.Error("failed to write triage hypotheses", "error", err)
	}

	var nextFixTargets []string
	var topMechanisms []string
	for _, h := range top {
		topMechanisms = append(topMechanisms, h.Mechanism)
		if len(h.Evidence) > 0 {
			nextFixTargets = append(nextFixTargets, fmt.Sprintf("%s:%d", h.Evidence[0].File, h.Evidence[0].Line))
		}
	}

	m.cleanupWorktrees(ctx, workers)
	m.cleanupWorktrees(ctx, triageWorkers)

	decision := types.RunDecision{
		Status:                   types.StatusOK,
		SelectedReproCandidateID: minimized.CandidateID,
		Rationale:                "selected highest-scoring deterministic reproducer, then merged triage hypotheses with evidence validation",
		TopHypotheses:            topMechanisms,
		NextFixTargets:           nextFixTargets,
		Diagnostics:              diagnostics,
	}

	return m.finalize(decision, map[string]interface{}{
		"repro": map[string]interface{}{
			"path":                      minimalReproPath,
			"oracle_command":            minimized.OracleCommand,
			"claimed_failure_signature": minimized.ClaimedFailureSignature,
			"validation":                minimized.Validation,
		},
	}), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
