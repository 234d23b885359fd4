package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/codorch/codorch/internal/command"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
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

func TestWorktreeCreateRemoveDiff(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := initRepo(t)
	mgr := NewManager(command.NewRunner(), repo)
	ctx := context.Background()

	wtPath := filepath.Join(t.TempDir(), "wt1")
	require.NoError(t, mgr.Create(ctx, "w1", wtPath))
	require.NoError(t, mgr.Create(ctx, "w1", wtPath), "create must be idempotent")

	diff, err := mgr.Diff(ctx, wtPath)
	require.NoError(t, err)
	require.Empty(t, diff)

	require.NoError(t, mgr.Remove(ctx, wtPath))
}
