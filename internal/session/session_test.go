package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPtySupervisorLifecycle(t *testing.T) {
	sup := NewPtySupervisor()
	ctx := context.Background()

	require.False(t, sup.SessionExists(ctx, "codorch-run1-w1"))

	err := sup.CreateSession(ctx, "codorch-run1-w1", ".", []string{"sh", "-c", "echo hello; sleep 5"})
	require.NoError(t, err)
	require.True(t, sup.SessionExists(ctx, "codorch-run1-w1"))

	deadline := time.Now().Add(2 * time.Second)
	var pane string
	for time.Now().Before(deadline) {
		pane = sup.CapturePane(ctx, "codorch-run1-w1", 10)
		if pane != "" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Contains(t, pane, "hello")

	names, err := sup.ListSessions(ctx, "codorch-run1-")
	require.NoError(t, err)
	assert.Contains(t, names, "codorch-run1-w1")

	sup.KillSession(ctx, "codorch-run1-w1")
	assert.False(t, sup.SessionExists(ctx, "codorch-run1-w1"))
}

func TestPtySupervisorKillNonexistentIsNoOp(t *testing.T) {
	sup := NewPtySupervisor()
	sup.KillSession(context.Background(), "no-such-session")
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, "a\nb\nc", tailLines("a\nb\nc", 5))
	assert.Equal(t, "b\nc", tailLines("a\nb\nc", 2))
}
