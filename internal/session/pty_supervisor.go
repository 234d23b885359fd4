package session

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
)

// ptySession tracks one in-process pty-backed detached "session". It exists
// for environments without a real tmux install: local development and CI.
type ptySession struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	master *os.File
	buf    bytes.Buffer
	done   bool
}

// PtySupervisor implements Supervisor without an external multiplexer
// binary, by spawning each "session" as a pty-attached subprocess directly.
// It has no concept of persistent named sessions beyond the lifetime of this
// process, which is sufficient for tests and single-host dry runs.
type PtySupervisor struct {
	mu       sync.Mutex
	sessions map[string]*ptySession
}

// NewPtySupervisor constructs a pty-backed Supervisor.
func NewPtySupervisor() *PtySupervisor {
	return &PtySupervisor{sessions: make(map[string]*ptySession)}
}

func (p *PtySupervisor) ListSessions(ctx context.Context, prefix string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var names []string
	for name := range p.sessions {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (p *PtySupervisor) SessionExists(ctx context.Context, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[name]
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return !sess.done
}

func (p *PtySupervisor) CreateSession(ctx context.Context, name, workdir string, launchCommand []string) error {
	if len(launchCommand) == 0 {
		launchCommand = []string{"sh"}
	}

	cmd := exec.Command(launchCommand[0], launchCommand[1:]...)
	cmd.Dir = workdir

	master, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("session: pty create %q failed: %w", name, err)
	}

	sess := &ptySession{cmd: cmd, master: master}
	go sess.drain()
	go sess.waitExit()

	p.mu.Lock()
	p.sessions[name] = sess
	p.mu.Unlock()
	return nil
}

func (s *ptySession) drain() {
	buf := make([]byte, 4096)
	for {
		n, err := s.master.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (s *ptySession) waitExit() {
	_ = s.cmd.Wait()
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

func (p *PtySupervisor) KillSession(ctx context.Context, name string) {
	p.mu.Lock()
	sess, ok := p.sessions[name]
	delete(p.sessions, name)
	p.mu.Unlock()
	if !ok {
		return
	}
	if sess.cmd.Process != nil {
		_ = sess.cmd.Process.Kill()
	}
	_ = sess.master.Close()
}

func (p *PtySupervisor) SendText(ctx context.Context, name, text string, pressEnter bool) error {
	p.mu.Lock()
	sess, ok := p.sessions[name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("session: send-text: no such session %q", name)
	}
	if pressEnter {
		text += "\n"
	}
	if _, err := sess.master.Write([]byte(text)); err != nil {
		return fmt.Errorf("session: send-text %q failed: %w", name, err)
	}
	return nil
}

func (p *PtySupervisor) CapturePane(ctx context.Context, name string, lines int) string {
	p.mu.Lock()
	sess, ok := p.sessions[name]
	p.mu.Unlock()
	if !ok {
		return ""
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	all := sess.buf.String()
	return tailLines(all, lines)
}

func (p *PtySupervisor) AttachCommand(name string) string {
	return fmt.Sprintf("(pty-backed session %q has no external attach command)", name)
}

func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
