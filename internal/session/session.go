// Package session adapts the external terminal multiplexer used to host
// worker subprocesses. It is a thin wrapper: session names are opaque
// strings, and the supervisor does no name management (spec.md §4.2).
//
// Two backends implement Supervisor: a tmux-backed one that shells out to
// the real tmux binary (the production path), and a pty-backed one built on
// creack/pty for local development and tests where tmux may not be
// installed. Exactly one backend is selected at construction time; nothing
// branches between them at call time.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/codorch/codorch/internal/command"
)

// Supervisor is the Session Supervisor interface (C2).
type Supervisor interface {
	ListSessions(ctx context.Context, prefix string) ([]string, error)
	SessionExists(ctx context.Context, name string) bool
	CreateSession(ctx context.Context, name, workdir string, launchCommand []string) error
	KillSession(ctx context.Context, name string)
	SendText(ctx context.Context, name, text string, pressEnter bool) error
	CapturePane(ctx context.Context, name string, lines int) string
	AttachCommand(name string) string
}

// TmuxSupervisor drives the real tmux binary through a command.Runner.
type TmuxSupervisor struct {
	runner *command.Runner
	cwd    string
}

// NewTmuxSupervisor constructs a Supervisor backed by the tmux binary found
// on PATH. cwd is the working directory of every tmux invocation.
func NewTmuxSupervisor(runner *command.Runner, cwd string) *TmuxSupervisor {
	return &TmuxSupervisor{runner: runner, cwd: cwd}
}

// ListSessions returns session names, optionally filtered by prefix.
func (t *TmuxSupervisor) ListSessions(ctx context.Context, prefix string) ([]string, error) {
	out, err := t.runner.Run(ctx, []string{"tmux", "ls", "-F", "#{session_name}"}, t.cwd, 10*time.Second, false)
	if err != nil {
		return nil, fmt.Errorf("session: list failed: %w", err)
	}
	if out.ReturnCode != 0 {
		// tmux exits non-zero when the server isn't running at all; treat as empty.
		return nil, nil
	}
	return splitNonEmptyLines(out.Stdout, prefix), nil
}

// SessionExists reports whether a session with this exact name exists.
func (t *TmuxSupervisor) SessionExists(ctx context.Context, name string) bool {
	out, err := t.runner.Run(ctx, []string{"tmux", "has-session", "-t", name}, t.cwd, 10*time.Second, false)
	if err != nil {
		return false
	}
	return out.ReturnCode == 0
}

// CreateSession creates a detached session. It fails loudly (spec.md §4.2):
// a non-zero exit from tmux surfaces as an error.
func (t *TmuxSupervisor) CreateSession(ctx context.Context, name, workdir string, launchCommand []string) error {
	args := []string{"tmux", "new-session", "-d", "-s", name, "-c", workdir}
	args = append(args, launchCommand...)
	out, err := t.runner.Run(ctx, args, t.cwd, 15*time.Second, true)
	if err != nil {
		return fmt.Errorf("session: create %q failed: %w", name, err)
	}
	_ = out
	return nil
}

// KillSession is best-effort and idempotent: killing an absent session is a
// no-op (spec.md R3).
func (t *TmuxSupervisor) KillSession(ctx context.Context, name string) {
	_, _ = t.runner.Run(ctx, []string{"tmux", "kill-session", "-t", name}, t.cwd, 10*time.Second, false)
}

// SendText sends keystrokes to a session's pane, optionally followed by Enter.
func (t *TmuxSupervisor) SendText(ctx context.Context, name, text string, pressEnter bool) error {
	args := []string{"tmux", "send-keys", "-t", name, text}
	if pressEnter {
		args = append(args, "C-m")
	}
	out, err := t.runner.Run(ctx, args, t.cwd, 10*time.Second, true)
	if err != nil {
		return fmt.Errorf("session: send-text %q failed: %w", name, err)
	}
	_ = out
	return nil
}

// CapturePane returns the last `lines` lines of scrollback, or "" on any
// failure (best-effort, per spec.md §4.2).
func (t *TmuxSupervisor) CapturePane(ctx context.Context, name string, lines int) string {
	out, err := t.runner.Run(ctx, []string{"tmux", "capture-pane", "-p", "-t", name, "-S", fmt.Sprintf("-%d", lines)}, t.cwd, 10*time.Second, false)
	if err != nil || out.ReturnCode != 0 {
		return ""
	}
	return out.Stdout
}

// AttachCommand returns the shell command a human would run to attach.
func (t *TmuxSupervisor) AttachCommand(name string) string {
	return fmt.Sprintf("tmux attach -t %s", name)
}

func splitNonEmptyLines(s, prefix string) []string {
	var names []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			line := s[start:i]
			start = i + 1
			if line == "" {
				continue
			}
			if prefix == "" || hasPrefix(line, prefix) {
				names = append(names, line)
			}
		}
	}
	return names
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
