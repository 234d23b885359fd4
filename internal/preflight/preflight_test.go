package preflight

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/codorch/codorch/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFailsOnMissingBinary(t *testing.T) {
	result := Run(context.Background(), command.NewRunner(), Config{
		RepoPath:      t.TempDir(),
		SessionBinary: "no-such-binary-xyz",
	})
	assert.False(t, result.Passed)
}

func TestRunFailsOnRelativeRepoPath(t *testing.T) {
	result := Run(context.Background(), command.NewRunner(), Config{RepoPath: "relative/path"})
	assert.False(t, result.Passed)
}

func TestRunPassesOnValidGitRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t.com", "GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("git", "init", "-q")

	result := Run(context.Background(), command.NewRunner(), Config{RepoPath: dir, VCSBinary: "git"})
	assert.True(t, result.Passed)
}

func TestRunSkipsAuthCheckWhenEarlierCheckFails(t *testing.T) {
	result := Run(context.Background(), command.NewRunner(), Config{
		RepoPath:         "relative",
		AgentAuthCommand: []string{"sh", "-c", "exit 1"},
	})
	assert.False(t, result.Passed)
	for _, c := range result.Checks {
		assert.NotEqual(t, "agent_auth", c.Name, "auth check must be skipped when an earlier check already failed")
	}
}
