// Package supervision implements the per-worker state machine: progress
// digest tracking, stall nudge, restart-once, give-up (spec.md §4.8).
//
// Per the spec's design notes (§9), state transitions are carried by value:
// Tick never mutates its Watch argument, it returns the updated copy. This
// keeps the state machine a pure function of (watch, pane contents, now),
// which is what makes it straightforward to unit test without a real
// session backend.
package supervision

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/codorch/codorch/internal/session"
)

const (
	nudgeText    = "status update: report progress or current blocker"
	paneLines    = 200
	paneDigestTail = 500
)

// Watch is one worker's supervision state.
type Watch struct {
	SessionName     string
	ScriptPath      string
	LastDigest      string
	LastChangeEpoch time.Time
	StalledOnce     bool
	RestartedOnce   bool
	Failed          bool

	// hasDigest distinguishes "never captured a pane yet" from "captured an
	// empty pane", so the very first tick always just records a baseline.
	hasDigest bool
}

// NewWatch constructs the initial (pre-tick) state for a worker.
func NewWatch(sessionName, scriptPath string) Watch {
	return Watch{SessionName: sessionName, ScriptPath: scriptPath}
}

// Loop drives Tick against a concrete Session Supervisor backend.
type Loop struct {
	sessions     session.Supervisor
	stallTimeout time.Duration
}

// NewLoop constructs a Loop backed by sessions, escalating after
// stallTimeout of unchanged pane content.
func NewLoop(sessions session.Supervisor, stallTimeout time.Duration) *Loop {
	return &Loop{sessions: sessions, stallTimeout: stallTimeout}
}

func digestOf(pane string) string {
	tail := pane
	if len(tail) > paneDigestTail {
		tail = tail[len(tail)-paneDigestTail:]
	}
	sum := blake3.Sum256([]byte(tail))
	return fmt.Sprintf("%x", sum)
}

// Tick advances watch by exactly one supervision step (spec.md §4.8):
//  1. capture the pane, digest its tail;
//  2. if the digest changed, record it and return;
//  3. else, once stalled for stallTimeout: nudge, then restart, then give up.
//
// launchCommand is the original command used to create the session, needed
// to recreate it identically on restart.
func (l *Loop) Tick(ctx context.Context, watch Watch, workdir string, launchCommand []string, now time.Time) Watch {
	if watch.Failed {
		return watch
	}
	if !l.sessions.SessionExists(ctx, watch.SessionName) {
		return watch
	}

	pane := l.sessions.CapturePane(ctx, watch.SessionName, paneLines)
	digest := digestOf(pane)

	if !watch.hasDigest || digest != watch.LastDigest {
		watch.LastDigest = digest
		watch.LastChangeEpoch = now
		watch.hasDigest = true
		return watch
	}

	stalledFor := now.Sub(watch.LastChangeEpoch)
	if stalledFor < l.stallTimeout {
		return watch
	}

	switch {
	case !watch.StalledOnce:
		_ = l.sessions.SendText(ctx, watch.SessionName, nudgeText, true)
		watch.StalledOnce = true
		watch.LastChangeEpoch = now
		return watch

	case !watch.RestartedOnce:
		l.sessions.KillSession(ctx, watch.SessionName)
		_ = l.sessions.CreateSession(ctx, watch.SessionName, workdir, launchCommand)
		watch.RestartedOnce = true
		watch.LastChangeEpoch = now
		return watch

	default:
		watch.Failed = true
		l.sessions.KillSession(ctx, watch.SessionName)
		return watch
	}
}
