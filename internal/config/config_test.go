package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load("", root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.RepoPath)
	assert.Equal(t, 2, cfg.MinWorkers)
	assert.Equal(t, 6, cfg.MaxWorkers)
	assert.Equal(t, 1, cfg.ReproMinMatches)
}

func TestLoadParsesManagerTable(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "checkout")
	require.NoError(t, os.MkdirAll(repo, 0o755))

	doc := `
[manager]
repo_path = "checkout"
min_workers = 3
max_workers = 4
repro_validation_runs = 7
repro_min_matches = 3
validation_python_version = "3.11"
`
	path := filepath.Join(root, "codorch.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path, root)
	require.NoError(t, err)
	assert.Equal(t, repo, cfg.RepoPath)
	assert.Equal(t, 3, cfg.MinWorkers)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 7, cfg.ReproValidationRuns)
	assert.Equal(t, 3, cfg.ReproMinMatches)
	assert.Equal(t, "3.11", cfg.ValidationPythonVersion)
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	root := t.TempDir()
	doc := `
[manager]
min_workers = 1
max_workers = 20
timeout_sec = 5
repro_validation_runs = 3
repro_min_matches = 99
`
	path := filepath.Join(root, "codorch.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path, root)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MinWorkers, "min_workers clamps up to 2")
	assert.Equal(t, 6, cfg.MaxWorkers, "max_workers clamps down to 6")
	assert.Equal(t, 60, cfg.TimeoutSec, "timeout_sec clamps up to 60")
	assert.Equal(t, 3, cfg.ReproMinMatches, "repro_min_matches clamps down to repro_validation_runs")
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	root := t.TempDir()
	_, err := Load(filepath.Join(root, "nope.toml"), root)
	assert.Error(t, err)
}

func TestValidateRejectsRelativeRepoPath(t *testing.T) {
	cfg := Defaults(".")
	cfg.RepoPath = "relative/path"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingRepoPath(t *testing.T) {
	root := t.TempDir()
	cfg := Defaults(root)
	cfg.RepoPath = filepath.Join(root, "does-not-exist")
	assert.Error(t, cfg.Validate())
}

func TestValidatePassesOnWellFormedConfig(t *testing.T) {
	root := t.TempDir()
	cfg := Defaults(root)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsReproMinMatchesOutOfRange(t *testing.T) {
	root := t.TempDir()
	cfg := Defaults(root)
	cfg.ReproMinMatches = cfg.ReproValidationRuns + 1
	assert.Error(t, cfg.Validate())
}

func TestSaveToFileThenLoadRoundTrips(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "checkout")
	require.NoError(t, os.MkdirAll(repo, 0o755))

	path := filepath.Join(root, "codorch.toml")
	require.NoError(t, SaveToFile(path, repo))

	cfg, err := Load(path, root)
	require.NoError(t, err)
	assert.Equal(t, repo, cfg.RepoPath)
	assert.NoError(t, cfg.Validate())
}
