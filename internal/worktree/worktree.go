// Package worktree creates and destroys isolated git checkouts of the
// target repository, one per worker, so concurrent agent workers never
// contend for the same working tree (spec.md §4.3, §5 "Shared resources").
package worktree

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codorch/codorch/internal/command"
)

// Manager owns worktree creation/removal against a single configured repo root.
type Manager struct {
	runner   *command.Runner
	repoPath string
}

// NewManager constructs a Manager rooted at repoPath.
func NewManager(runner *command.Runner, repoPath string) *Manager {
	return &Manager{runner: runner, repoPath: repoPath}
}

// Create materializes a detached checkout at path. Idempotent: if git
// reports the worktree already exists, that's treated as success.
func (m *Manager) Create(ctx context.Context, workerID, path string) error {
	out, err := m.runner.Run(ctx, []string{"git", "-C", m.repoPath, "worktree", "add", path, "-d"}, m.repoPath, 60*time.Second, false)
	if err != nil {
		return fmt.Errorf("worktree: create for %s failed: %w", workerID, err)
	}
	if out.ReturnCode != 0 {
		if strings.Contains(out.Stderr, "already exists") {
			return nil
		}
		return fmt.Errorf("worktree: create for %s failed (%d): %s", workerID, out.ReturnCode, out.Stderr)
	}
	return nil
}

// Remove force-removes a worktree checkout.
func (m *Manager) Remove(ctx context.Context, path string) error {
	out, err := m.runner.Run(ctx, []string{"git", "-C", m.repoPath, "worktree", "remove", "--force", path}, m.repoPath, 60*time.Second, false)
	if err != nil {
		return fmt.Errorf("worktree: remove %s failed: %w", path, err)
	}
	if out.ReturnCode != 0 {
		return fmt.Errorf("worktree: remove %s failed (%d): %s", path, out.ReturnCode, out.Stderr)
	}
	return nil
}

// Diff returns the working-tree diff against HEAD for a worktree checkout.
func (m *Manager) Diff(ctx context.Context, path string) (string, error) {
	out, err := m.runner.Run(ctx, []string{"git", "-C", path, "diff", "HEAD"}, path, 30*time.Second, false)
	if err != nil {
		return "", fmt.Errorf("worktree: diff %s failed: %w", path, err)
	}
	return out.Stdout, nil
}
