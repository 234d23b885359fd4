// Package artifact owns the per-run directory contract (spec.md §6.2): path
// algebra, idempotent directory/skeleton initialization, and atomic,
// key-sorted JSON read/write. It is the only package that touches the run
// directory's filesystem layout directly; every other component goes
// through a Store.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Paths is the full set of well-known locations inside one run directory.
type Paths struct {
	RunDir string

	IssueJSON    string
	SessionsJSON string

	ReproDir              string
	ReproCandidatesDir    string
	SelectedCandidateJSON string
	MinimalReproBase      string
	SemanticReduceOutput  string

	TriageDir            string
	TriageHypothesesJSON string

	ScriptsDir string

	TelemetryDir               string
	ManagerSemanticReduceJSONL string

	DecisionJSON string
	FinalMD      string
	RunDoneJSON  string

	ChecksumsJSON string
}

// Store owns the artifact directory contract for one run.
type Store struct {
	RunsRoot string
	RunID    string
	Paths    Paths
}

// NewStore computes the path algebra for runID under runsRoot. No
// filesystem access happens here; call InitializeContract to materialize it.
func NewStore(runsRoot, runID string) *Store {
	runDir := filepath.Join(runsRoot, runID)
	reproDir := filepath.Join(runDir, "repro")
	triageDir := filepath.Join(runDir, "triage")

	return &Store{
		RunsRoot: runsRoot,
		RunID:    runID,
		Paths: Paths{
			RunDir:       runDir,
			IssueJSON:    filepath.Join(runDir, "issue.json"),
			SessionsJSON: filepath.Join(runDir, "sessions.json"),

			ReproDir:              reproDir,
			ReproCandidatesDir:    filepath.Join(reproDir, "candidates"),
			SelectedCandidateJSON: filepath.Join(reproDir, "selected_candidate.json"),
			MinimalReproBase:      filepath.Join(reproDir, "minimal_repro"),
			SemanticReduceOutput:  filepath.Join(reproDir, "semantic_reduce_output.txt"),

			TriageDir:            triageDir,
			TriageHypothesesJSON: filepath.Join(triageDir, "hypotheses.json"),

			ScriptsDir: filepath.Join(runDir, "scripts"),

			TelemetryDir:               filepath.Join(runDir, "telemetry"),
			ManagerSemanticReduceJSONL: filepath.Join(runDir, "telemetry", "manager-semantic-reduce.jsonl"),

			DecisionJSON: filepath.Join(runDir, "decision.json"),
			FinalMD:      filepath.Join(runDir, "final.md"),
			RunDoneJSON:  filepath.Join(runDir, "run_done.json"),

			ChecksumsJSON: filepath.Join(runDir, "checksums.json"),
		},
	}
}

// InitializeContract creates every required directory and writes skeleton
// documents so downstream readers can always open them, even before a wave
// has run. Idempotent: calling it twice leaves existing files untouched (R2).
func (s *Store) InitializeContract() error {
	dirs := []string{
		s.Paths.RunDir,
		s.Paths.ReproCandidatesDir,
		s.Paths.TriageDir,
		s.Paths.ScriptsDir,
		s.Paths.TelemetryDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("artifact: create directory %s: %w", dir, err)
		}
	}

	skeletons := []struct {
		path  string
		value interface{}
	}{
		{s.Paths.IssueJSON, map[string]interface{}{}},
		{s.Paths.SessionsJSON, map[string]interface{}{"manager": map[string]interface{}{}, "workers": map[string]interface{}{}}},
		{s.Paths.TriageHypothesesJSON, map[string]interface{}{"hypotheses": []interface{}{}}},
		{s.Paths.DecisionJSON, map[string]interface{}{}},
		{s.Paths.ChecksumsJSON, map[string]interface{}{}},
	}
	for _, sk := range skeletons {
		if _, err := os.Stat(sk.path); os.IsNotExist(err) {
			if err := writeJSON(sk.path, sk.value); err != nil {
				return fmt.Errorf("artifact: initialize %s: %w", sk.path, err)
			}
		} else if err != nil {
			return fmt.Errorf("artifact: stat %s: %w", sk.path, err)
		}
	}

	placeholders := []string{s.minimalReproPath("txt"), s.Paths.SemanticReduceOutput, s.Paths.ManagerSemanticReduceJSONL}
	for _, path := range placeholders {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := atomicWrite(path, []byte{}); err != nil {
				return fmt.Errorf("artifact: initialize %s placeholder: %w", path, err)
			}
		} else if err != nil {
			return fmt.Errorf("artifact: stat %s: %w", path, err)
		}
	}
	if _, err := os.Stat(s.Paths.FinalMD); os.IsNotExist(err) {
		if err := atomicWrite(s.Paths.FinalMD, []byte("# Run in progress\n")); err != nil {
			return fmt.Errorf("artifact: initialize final.md placeholder: %w", err)
		}
	}

	return nil
}

func (s *Store) minimalReproPath(ext string) string {
	return s.Paths.MinimalReproBase + "." + ext
}

// MinimalReproPath returns the path for the selected candidate's minimized
// script, swapping the extension to match the candidate's file_extension.
func (s *Store) MinimalReproPath(ext string) string {
	return s.minimalReproPath(ext)
}

// WriteJSON writes v as key-sorted, indented, newline-terminated JSON, then
// records a content checksum for it in the run's checksums.json manifest.
func (s *Store) WriteJSON(path string, v interface{}) error {
	data, err := canonicalJSON(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := atomicWrite(path, data); err != nil {
		return err
	}
	return s.recordChecksum(path, data)
}

// ReadJSON reads and decodes path into v.
func (s *Store) ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("artifact: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("artifact: decode %s: %w", path, err)
	}
	return nil
}

// WriteFile writes raw bytes atomically (for non-JSON artifacts: scripts,
// prompts, the minimized repro script, semantic-reduce transcripts), then
// records a content checksum for it in the run's checksums.json manifest.
func (s *Store) WriteFile(path string, data []byte) error {
	if err := atomicWrite(path, data); err != nil {
		return err
	}
	return s.recordChecksum(path, data)
}

// recordChecksum folds path's content checksum into checksums.json, keyed
// by its path relative to the run directory. Skips the manifest file itself
// to avoid writing through its own write.
func (s *Store) recordChecksum(path string, data []byte) error {
	if path == s.Paths.ChecksumsJSON {
		return nil
	}
	key, err := filepath.Rel(s.Paths.RunDir, path)
	if err != nil {
		key = path
	}

	checksums := map[string]string{}
	if existing, err := os.ReadFile(s.Paths.ChecksumsJSON); err == nil {
		_ = json.Unmarshal(existing, &checksums)
	}
	checksums[key] = ChecksumBytes(data)
	return writeJSON(s.Paths.ChecksumsJSON, checksums)
}

// ChecksumBytes returns a "blake3:<hex>" content digest, used to fingerprint
// script/artifact content independent of the wall-clock timestamp at which
// it was written.
func ChecksumBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return "blake3:" + fmt.Sprintf("%x", sum)
}
