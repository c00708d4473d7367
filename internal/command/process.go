package command

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattjoyce/testagent/internal/protocol"
)

// Process is the agent-side record of one submitted command: the serializable
// state plus the live OS handle, which is dropped once the process exits.
type Process struct {
	id      int
	line    string
	cwd     string
	started time.Time

	stdout syncBuffer
	stderr syncBuffer

	mu      sync.Mutex
	cmd     *exec.Cmd
	status  protocol.Status
	code    *int
	signal  *string
	elapsed *float64
	// sent is the last signal delivered by Kill.
	sent *string

	exited chan struct{}
}

func newProcess(id int, line, cwd string) *Process {
	return &Process{
		id:     id,
		line:   line,
		cwd:    cwd,
		status: protocol.StatusStarted,
		exited: make(chan struct{}),
	}
}

// ID returns the command id, unique within its workspace.
func (p *Process) ID() int { return p.id }

// Line returns the literal command string.
func (p *Process) Line() string { return p.line }

// Cwd returns the working directory relative to the workspace root.
func (p *Process) Cwd() string { return p.cwd }

// Exited is closed once the command reaches a terminal status.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Running reports whether the OS process is still tracked.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// Snapshot returns the current JSON projection. Output fields reflect
// whatever the process has written so far.
func (p *Process) Snapshot() protocol.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return protocol.Command{
		ID:        p.id,
		Status:    p.status,
		Command:   p.line,
		Result:    p.stdout.String(),
		Stderr:    p.stderr.String(),
		Code:      p.code,
		Signal:    p.signal,
		TimeTaken: p.elapsed,
	}
}

// finish records the outcome exactly once. Later calls are ignored so a
// terminal status never changes.
func (p *Process) finish(status protocol.Status, code *int, sig *string, elapsed time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Terminal() {
		return false
	}
	ms := float64(elapsed) / float64(time.Millisecond)
	p.status = status
	p.code = code
	p.signal = sig
	p.elapsed = &ms
	p.cmd = nil
	close(p.exited)
	return true
}

func (p *Process) setSent(name *string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = name
}

func (p *Process) sentSignal() *string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *Process) handle() *exec.Cmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd
}

// syncBuffer lets the wait goroutine append output while snapshots read it.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) WriteString(str string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.WriteString(str)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

// classify maps how a process ended onto the command state machine. sent is
// the signal Kill delivered, if any.
func classify(cmd *exec.Cmd, waitErr error, sent *string) (protocol.Status, *int, *string) {
	state := cmd.ProcessState
	if state == nil {
		return protocol.StatusError, nil, nil
	}
	if name, ok := endingSignal(state, sent, waitStatusSignals); ok {
		return protocol.StatusError, nil, name
	}
	code := state.ExitCode()
	if code == 0 && (waitErr == nil || errors.Is(waitErr, exec.ErrWaitDelay)) {
		return protocol.StatusDone, &code, nil
	}
	return protocol.StatusError, &code, nil
}

// endingSignal names the signal that ended the process. Platforms whose wait
// status carries no signal fall back to the one Kill sent.
func endingSignal(state *os.ProcessState, sent *string, statusSignals bool) (*string, bool) {
	if sig, ok := terminatingSignal(state); ok {
		name := SignalName(sig)
		return &name, true
	}
	if !statusSignals && sent != nil {
		name := *sent
		return &name, true
	}
	return nil, false
}
