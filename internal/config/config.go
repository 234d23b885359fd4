// Package config loads and validates the manager's TOML configuration file
// (spec.md §6.4): the repo path, the worker wave bounds, timeouts, and the
// replay-gate thresholds used by internal/repro and internal/manager.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigFilename is the file looked for in the working directory
	// when no --config flag or CODORCH_CONFIG environment variable is set.
	DefaultConfigFilename = "codorch.toml"
	// EnvConfigPath names the environment variable that overrides the
	// default config file location.
	EnvConfigPath = "CODORCH_CONFIG"
)

// fileConfig is the raw shape of the TOML document's [manager] table. The
// numeric fields are pointers so Load can tell "absent" apart from
// "explicitly zero" before applying defaults and clamps; an empty string
// field is treated as absent.
type fileConfig struct {
	Manager struct {
		RepoPath                string `toml:"repo_path"`
		RunsRoot                string `toml:"runs_root"`
		MinWorkers              *int   `toml:"min_workers"`
		MaxWorkers              *int   `toml:"max_workers"`
		TimeoutSec              *int   `toml:"timeout_sec"`
		PollIntervalSec         *int   `toml:"poll_interval_sec"`
		ReproValidationRuns     *int   `toml:"repro_validation_runs"`
		ReproMinMatches         *int   `toml:"repro_min_matches"`
		ValidationPythonVersion string `toml:"validation_python_version"`
		WorkerModel             string `toml:"worker_model"`
		ManagerModel            string `toml:"manager_model"`
	} `toml:"manager"`
}

// Config is the manager's resolved, already-clamped runtime configuration.
type Config struct {
	RepoPath                string `toml:"repo_path"`
	RunsRoot                string `toml:"runs_root"`
	MinWorkers              int    `toml:"min_workers"`
	MaxWorkers              int    `toml:"max_workers"`
	TimeoutSec              int    `toml:"timeout_sec"`
	PollIntervalSec         int    `toml:"poll_interval_sec"`
	ReproValidationRuns     int    `toml:"repro_validation_runs"`
	ReproMinMatches         int    `toml:"repro_min_matches"`
	ValidationPythonVersion string `toml:"validation_python_version"`
	WorkerModel             string `toml:"worker_model"`
	ManagerModel            string `toml:"manager_model"`
}

// Defaults returns the manager's built-in defaults, resolved against root
// (typically the working directory). repo_path defaults to root itself —
// the caller is expected to override it with a real checkout via
// --repo-path or the config file.
func Defaults(root string) Config {
	return Config{
		RepoPath:                root,
		RunsRoot:                filepath.Join(root, "runs"),
		MinWorkers:              2,
		MaxWorkers:              6,
		TimeoutSec:              300,
		PollIntervalSec:         5,
		ReproValidationRuns:     5,
		ReproMinMatches:         1,
		ValidationPythonVersion: "3.12",
	}
}

// resolvePath makes raw absolute relative to root, falling back to
// defaultPath when raw is empty.
func resolvePath(raw, root, defaultPath string) string {
	if strings.TrimSpace(raw) == "" {
		return defaultPath
	}
	path := strings.TrimSpace(raw)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Load resolves the config file to read (an explicit path, else
// CODORCH_CONFIG, else ./codorch.toml if it exists, else no file at all),
// parses its [manager] table, and clamps every numeric field into its valid
// range the same way the original ManagerDefaults loader does:
// min_workers>=2, max_workers in [min_workers,6], timeout_sec>=60,
// poll_interval_sec>=1, repro_validation_runs>=1, repro_min_matches in
// [1,repro_validation_runs] (Open Question 1: default 1).
func Load(explicitPath string, root string) (Config, error) {
	cfg := Defaults(root)

	selected := explicitPath
	if selected == "" {
		selected = os.Getenv(EnvConfigPath)
	}
	if selected == "" {
		candidate := filepath.Join(root, DefaultConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			selected = candidate
		}
	}
	if selected == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(selected)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", selected, err)
	}

	var raw fileConfig
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", selected, err)
	}

	cfg.RepoPath = resolvePath(raw.Manager.RepoPath, root, cfg.RepoPath)
	cfg.RunsRoot = resolvePath(raw.Manager.RunsRoot, root, cfg.RunsRoot)

	if raw.Manager.MinWorkers != nil {
		cfg.MinWorkers = *raw.Manager.MinWorkers
	}
	cfg.MinWorkers = maxInt(2, cfg.MinWorkers)

	if raw.Manager.MaxWorkers != nil {
		cfg.MaxWorkers = *raw.Manager.MaxWorkers
	}
	cfg.MaxWorkers = minInt(6, maxInt(cfg.MinWorkers, cfg.MaxWorkers))

	if raw.Manager.TimeoutSec != nil {
		cfg.TimeoutSec = *raw.Manager.TimeoutSec
	}
	cfg.TimeoutSec = maxInt(60, cfg.TimeoutSec)

	if raw.Manager.PollIntervalSec != nil {
		cfg.PollIntervalSec = *raw.Manager.PollIntervalSec
	}
	cfg.PollIntervalSec = maxInt(1, cfg.PollIntervalSec)

	if raw.Manager.ReproValidationRuns != nil {
		cfg.ReproValidationRuns = *raw.Manager.ReproValidationRuns
	}
	cfg.ReproValidationRuns = maxInt(1, cfg.ReproValidationRuns)

	if raw.Manager.ReproMinMatches != nil {
		cfg.ReproMinMatches = *raw.Manager.ReproMinMatches
	}
	cfg.ReproMinMatches = maxInt(1, minInt(cfg.ReproMinMatches, cfg.ReproValidationRuns))

	if v := strings.TrimSpace(raw.Manager.ValidationPythonVersion); v != "" {
		cfg.ValidationPythonVersion = v
	}
	cfg.WorkerModel = strings.TrimSpace(raw.Manager.WorkerModel)
	cfg.ManagerModel = strings.TrimSpace(raw.Manager.ManagerModel)

	return cfg, nil
}

// Validate checks cross-field constraints Load's clamping can't express on
// its own (e.g. that repo_path actually exists once the caller expects to
// run against it).
func (c Config) Validate() error {
	if c.RepoPath == "" {
		return fmt.Errorf("config error: repo_path is required\n\nHint: set [manager] repo_path = \"/path/to/checkout\" in codorch.toml, or pass --repo-path")
	}
	if !filepath.IsAbs(c.RepoPath) {
		return fmt.Errorf("config error: repo_path must be absolute, got %q", c.RepoPath)
	}
	if info, err := os.Stat(c.RepoPath); err != nil || !info.IsDir() {
		return fmt.Errorf("config error: repo_path %q does not exist or is not a directory", c.RepoPath)
	}
	if c.MinWorkers < 2 {
		return fmt.Errorf("config error: min_workers must be >= 2, got %d", c.MinWorkers)
	}
	if c.MaxWorkers < c.MinWorkers || c.MaxWorkers > 6 {
		return fmt.Errorf("config error: max_workers must be in [min_workers, 6], got %d", c.MaxWorkers)
	}
	if c.TimeoutSec < 60 {
		return fmt.Errorf("config error: timeout_sec must be >= 60, got %d", c.TimeoutSec)
	}
	if c.ReproMinMatches < 1 || c.ReproMinMatches > c.ReproValidationRuns {
		return fmt.Errorf("config error: repro_min_matches must be in [1, repro_validation_runs=%d], got %d", c.ReproValidationRuns, c.ReproMinMatches)
	}
	return nil
}

// GenerateDefaultTOML renders a starter codorch.toml against repoPath. The
// CLI has no command that calls it; SaveToFile writes its output.
func GenerateDefaultTOML(repoPath string) (string, error) {
	cfg := Defaults(repoPath)
	cfg.RepoPath = repoPath

	var buf strings.Builder
	buf.WriteString("[manager]\n")
	fmt.Fprintf(&buf, "repo_path = %q\n", cfg.RepoPath)
	fmt.Fprintf(&buf, "runs_root = %q\n", cfg.RunsRoot)
	fmt.Fprintf(&buf, "min_workers = %d\n", cfg.MinWorkers)
	fmt.Fprintf(&buf, "max_workers = %d\n", cfg.MaxWorkers)
	fmt.Fprintf(&buf, "timeout_sec = %d\n", cfg.TimeoutSec)
	fmt.Fprintf(&buf, "poll_interval_sec = %d\n", cfg.PollIntervalSec)
	fmt.Fprintf(&buf, "repro_validation_runs = %d\n", cfg.ReproValidationRuns)
	fmt.Fprintf(&buf, "repro_min_matches = %d\n", cfg.ReproMinMatches)
	fmt.Fprintf(&buf, "validation_python_version = %q\n", cfg.ValidationPythonVersion)
	return buf.String(), nil
}

// SaveToFile writes the TOML document produced by GenerateDefaultTOML.
func SaveToFile(path, repoPath string) error {
	doc, err := GenerateDefaultTOML(repoPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
