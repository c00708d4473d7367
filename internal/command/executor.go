// Package command spawns shell commands inside workspace directories and
// tracks them from start to exit.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/testagent/internal/protocol"
)

var (
	// ErrNotFound is returned when a command id is unknown to its workspace.
	ErrNotFound = errors.New("command not found")
	// ErrInvalidPath is returned when a path resolves outside the workspace root.
	ErrInvalidPath = errors.New("invalid path")
	// ErrInvalidSignal is returned for signal names the agent does not know.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrEmptyCommand is returned when the command line is blank.
	ErrEmptyCommand = errors.New("command line is empty")
)

// defaultWaitDelay bounds how long Wait blocks on output pipes held open by
// orphaned grandchildren after the shell itself has exited.
const defaultWaitDelay = 10 * time.Second

// Target is the workspace a command runs in.
type Target interface {
	ID() int
	Dir() string
	// Track assigns the next command id while holding the target's lock and
	// records the Process built by start under that id.
	Track(start func(cid int) *Process) *Process
	Lookup(cid int) (*Process, bool)
	Processes() []*Process
}

// Observer receives command lifecycle notifications. Implementations must not
// block and must not call back into the Target.
type Observer interface {
	CommandStarted(workspaceID int, p *Process)
	CommandFinished(workspaceID int, p *Process)
	CommandKilled(workspaceID int, p *Process, sig string)
}

// Executor runs commands through the platform shell.
type Executor struct {
	logger        *slog.Logger
	defaultSignal syscall.Signal
	waitDelay     time.Duration
	environ       func() []string
	now           func() time.Time
	observers     []Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithDefaultSignal sets the signal used when a kill names none.
func WithDefaultSignal(sig syscall.Signal) Option {
	return func(e *Executor) { e.defaultSignal = sig }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithWaitDelay overrides how long to wait for stray output pipes after exit.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) { e.waitDelay = d }
}

// WithEnviron replaces the parent environment source, mainly for tests.
func WithEnviron(environ func() []string) Option {
	return func(e *Executor) { e.environ = environ }
}

// NewExecutor creates an executor. Without options it signals SIGTERM and
// inherits os.Environ().
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:        slog.Default(),
		defaultSignal: syscall.SIGTERM,
		waitDelay:     defaultWaitDelay,
		environ:       os.Environ,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit spawns line in root+cwd and returns at once with status started. A
// spawn failure is not an error here: the command is recorded with status
// error and the reason in its stderr.
func (e *Executor) Submit(t Target, line, cwd string) (*Process, error) {
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyCommand
	}
	dir, err := ResolveIn(t.Dir(), cwd)
	if err != nil {
		return nil, err
	}

	p := t.Track(func(cid int) *Process {
		p := newProcess(cid, line, cwd)
		e.start(t, p, dir)
		return p
	})
	return p, nil
}

func (e *Executor) start(t Target, p *Process, dir string) {
	logger := e.logger.With("workspace_id", t.ID(), "command_id", p.id)

	cmd := shellCommand(p.line)
	cmd.Dir = dir
	cmd.Env = workspaceEnv(e.environ(), t.Dir(), t.ID())
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr
	cmd.WaitDelay = e.waitDelay
	setProcessGroup(cmd)

	p.started = e.now()
	if err := cmd.Start(); err != nil {
		logger.Warn("command failed to start", "command", p.line, "error", err)
		fmt.Fprintf(&p.stderr, "%v", err)
		e.notifyStarted(t, p)
		if p.finish(protocol.StatusError, nil, nil, e.now().Sub(p.started)) {
			e.notifyFinished(t, p)
		}
		return
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	logger.Info("command started", "command", p.line, "cwd", p.cwd, "pid", cmd.Process.Pid)
	e.notifyStarted(t, p)
	go e.wait(t, p, cmd, logger)
}

func (e *Executor) wait(t Target, p *Process, cmd *exec.Cmd, logger *slog.Logger) {
	waitErr := cmd.Wait()
	status, code, sig := classify(cmd, waitErr, p.sentSignal())
	if !p.finish(status, code, sig, e.now().Sub(p.started)) {
		return
	}

	attrs := []any{"status", status, "time_taken_ms", *p.Snapshot().TimeTaken}
	if code != nil {
		attrs = append(attrs, "exit_code", *code)
	}
	if sig != nil {
		attrs = append(attrs, "signal", *sig)
	}
	if status == protocol.StatusDone {
		logger.Info("command finished", attrs...)
	} else {
		logger.Warn("command failed", attrs...)
	}
	e.notifyFinished(t, p)
}

// Get returns the current snapshot of command cid.
func (e *Executor) Get(t Target, cid int) (protocol.Command, error) {
	p, ok := t.Lookup(cid)
	if !ok {
		return protocol.Command{}, fmt.Errorf("%w: workspace %d command %d", ErrNotFound, t.ID(), cid)
	}
	return p.Snapshot(), nil
}

// Kill sends signal (or the default when empty) to command cid. Killing a
// command that already exited succeeds without doing anything.
func (e *Executor) Kill(t Target, cid int, signal string) error {
	p, ok := t.Lookup(cid)
	if !ok {
		return fmt.Errorf("%w: workspace %d command %d", ErrNotFound, t.ID(), cid)
	}
	sig := e.defaultSignal
	if strings.TrimSpace(signal) != "" {
		parsed, err := ParseSignal(signal)
		if err != nil {
			return err
		}
		sig = parsed
	}
	return e.signal(t, p, sig)
}

// KillAll signals every running command of t with the default signal and
// returns how many were signalled. Failures are logged, not returned.
func (e *Executor) KillAll(t Target) int {
	n := 0
	for _, p := range t.Processes() {
		if !p.Running() {
			continue
		}
		if err := e.signal(t, p, e.defaultSignal); err != nil {
			e.logger.Warn("failed to kill command",
				"workspace_id", t.ID(), "command_id", p.id, "error", err)
			continue
		}
		n++
	}
	return n
}

func (e *Executor) signal(t Target, p *Process, sig syscall.Signal) error {
	cmd := p.handle()
	if cmd == nil {
		return nil
	}
	name := SignalName(sig)
	prev := p.sentSignal()
	p.setSent(&name)
	if err := signalGroup(cmd, sig); err != nil {
		p.setSent(prev)
		return fmt.Errorf("signal command %d: %w", p.id, err)
	}
	e.logger.Info("command signalled", "workspace_id", t.ID(), "command_id", p.id, "signal", name)
	for _, o := range e.observers {
		o.CommandKilled(t.ID(), p, name)
	}
	return nil
}

func (e *Executor) notifyStarted(t Target, p *Process) {
	for _, o := range e.observers {
		o.CommandStarted(t.ID(), p)
	}
}

func (e *Executor) notifyFinished(t Target, p *Process) {
	for _, o := range e.observers {
		o.CommandFinished(t.ID(), p)
	}
}

// workspaceEnv inherits parent but points the home-directory variables at
// root, keeping the previous values under ORIGINAL* names.
func workspaceEnv(parent []string, root string, id int) []string {
	current := make(map[string]string, len(parent))
	for _, kv := range parent {
		k, v, _ := strings.Cut(kv, "=")
		current[envKey(k)] = v
	}

	overrides := map[string]string{
		"TEST_ID":         strconv.Itoa(id),
		"ORIGINALHOME":    current["HOME"],
		"ORIGINALAPPDATA": current["APPDATA"],
	}
	for _, k := range homeEnvKeys {
		overrides[k] = root
	}

	env := make([]string, 0, len(parent)+len(overrides))
	for _, kv := range parent {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[envKey(k)]; ok {
			continue
		}
		env = append(env, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}
