//go:build !windows

package command

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/testagent/internal/protocol"
)

// fakeTarget is a minimal in-memory workspace.
type fakeTarget struct {
	id  int
	dir string

	mu    sync.Mutex
	next  int
	procs map[int]*Process
	order []int
}

func newFakeTarget(t *testing.T, id int) *fakeTarget {
	t.Helper()
	return &fakeTarget{id: id, dir: t.TempDir(), next: 1, procs: map[int]*Process{}}
}

func (f *fakeTarget) ID() int     { return f.id }
func (f *fakeTarget) Dir() string { return f.dir }

func (f *fakeTarget) Track(start func(cid int) *Process) *Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	cid := f.next
	f.next++
	p := start(cid)
	f.procs[cid] = p
	f.order = append(f.order, cid)
	return p
}

func (f *fakeTarget) Lookup(cid int) (*Process, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[cid]
	return p, ok
}

func (f *fakeTarget) Processes() []*Process {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Process, 0, len(f.order))
	for _, cid := range f.order {
		out = append(out, f.procs[cid])
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []int
	finished []int
	killed   []string
}

func (r *recordingObserver) CommandStarted(_ int, p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, p.ID())
}

func (r *recordingObserver) CommandFinished(_ int, p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, p.ID())
}

func (r *recordingObserver) CommandKilled(_ int, _ *Process, sig string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killed = append(r.killed, sig)
}

func waitExit(t *testing.T, p *Process) protocol.Command {
	t.Helper()
	select {
	case <-p.Exited():
	case <-time.After(10 * time.Second):
		t.Fatalf("command %d did not exit: %+v", p.ID(), p.Snapshot())
	}
	return p.Snapshot()
}

func TestSubmitEchoHello(t *testing.T) {
	obs := &recordingObserver{}
	e := NewExecutor(WithObserver(obs))
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "echo hello", "")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ID())

	snap := waitExit(t, p)
	assert.Equal(t, protocol.StatusDone, snap.Status)
	assert.Contains(t, snap.Result, "hello")
	require.NotNil(t, snap.Code)
	assert.Equal(t, 0, *snap.Code)
	assert.Nil(t, snap.Signal)
	require.NotNil(t, snap.TimeTaken)
	assert.GreaterOrEqual(t, *snap.TimeTaken, 0.0)
	assert.False(t, p.Running())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []int{1}, obs.started)
	assert.Equal(t, []int{1}, obs.finished)
}

func TestSubmitNonZeroExit(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "echo oops >&2; exit 3", "")
	require.NoError(t, err)

	snap := waitExit(t, p)
	assert.Equal(t, protocol.StatusError, snap.Status)
	require.NotNil(t, snap.Code)
	assert.Equal(t, 3, *snap.Code)
	assert.Contains(t, snap.Stderr, "oops")
}

func TestSubmitReturnsStartedImmediately(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "sleep 30", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Kill(target, p.ID(), "SIGKILL") })

	snap := p.Snapshot()
	assert.Equal(t, protocol.StatusStarted, snap.Status)
	assert.Nil(t, snap.Code)
	assert.Nil(t, snap.TimeTaken)
	assert.True(t, p.Running())
}

func TestKillRecordsSignal(t *testing.T) {
	obs := &recordingObserver{}
	e := NewExecutor(WithObserver(obs))
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "sleep 30", "")
	require.NoError(t, err)

	require.NoError(t, e.Kill(target, p.ID(), ""))
	snap := waitExit(t, p)
	assert.Equal(t, protocol.StatusError, snap.Status)
	require.NotNil(t, snap.Signal)
	assert.Equal(t, "SIGTERM", *snap.Signal)
	assert.Nil(t, snap.Code)

	obs.mu.Lock()
	assert.Equal(t, []string{"SIGTERM"}, obs.killed)
	obs.mu.Unlock()

	// Terminal state is final and a second kill is a no-op.
	require.NoError(t, e.Kill(target, p.ID(), "SIGKILL"))
	assert.Equal(t, snap, p.Snapshot())
}

func TestKillWithExplicitSignal(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "sleep 30", "")
	require.NoError(t, err)
	require.NoError(t, e.Kill(target, p.ID(), "KILL"))

	snap := waitExit(t, p)
	require.NotNil(t, snap.Signal)
	assert.Equal(t, "SIGKILL", *snap.Signal)
}

func TestKillExitedCommandIsNoop(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "true", "")
	require.NoError(t, err)
	before := waitExit(t, p)

	require.NoError(t, e.Kill(target, p.ID(), ""))
	assert.Equal(t, before, p.Snapshot())
	assert.Equal(t, protocol.StatusDone, before.Status)
}

func TestKillErrors(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	err := e.Kill(target, 42, "")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	p, err := e.Submit(target, "true", "")
	require.NoError(t, err)
	waitExit(t, p)

	err = e.Kill(target, p.ID(), "SIGNOTREAL")
	assert.True(t, errors.Is(err, ErrInvalidSignal), "got %v", err)
}

func TestGet(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 7)

	_, err := e.Get(target, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := e.Submit(target, "printf abc", "")
	require.NoError(t, err)
	waitExit(t, p)

	snap, err := e.Get(target, p.ID())
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.Result)
	assert.Equal(t, "printf abc", snap.Command)
}

func TestSubmitCwdComposition(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "mkdir sub", "")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusDone, waitExit(t, p).Status)

	p, err = e.Submit(target, "cd sub && echo ok", "")
	require.NoError(t, err)
	snap := waitExit(t, p)
	assert.Equal(t, protocol.StatusDone, snap.Status)
	assert.Contains(t, snap.Result, "ok")

	p, err = e.Submit(target, "pwd", "sub")
	require.NoError(t, err)
	snap = waitExit(t, p)
	wantDir, err := filepath.EvalSymlinks(filepath.Join(target.Dir(), "sub"))
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(strings.TrimSpace(snap.Result))
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
}

func TestSubmitRejectsEscapingCwd(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	_, err := e.Submit(target, "ls", "../..")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = e.Submit(target, "   ", "")
	assert.ErrorIs(t, err, ErrEmptyCommand)

	assert.Empty(t, target.Processes(), "rejected submissions must not consume ids")
}

func TestSubmitSpawnFailure(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	p, err := e.Submit(target, "echo unreachable", "does-not-exist")
	require.NoError(t, err)

	snap := waitExit(t, p)
	assert.Equal(t, protocol.StatusError, snap.Status)
	assert.NotEmpty(t, snap.Stderr)
	assert.Nil(t, snap.Code)
}

func TestSubmitEnvironment(t *testing.T) {
	parent := []string{"HOME=/home/ci", "APPDATA=/appdata", "PATH=" + os.Getenv("PATH"), "KEEP=me"}
	e := NewExecutor(WithEnviron(func() []string { return parent }))
	target := newFakeTarget(t, 12)

	p, err := e.Submit(target, `printf '%s|%s|%s|%s|%s|%s' "$HOME" "$APPDATA" "$ORIGINALHOME" "$ORIGINALAPPDATA" "$TEST_ID" "$KEEP"`, "")
	require.NoError(t, err)
	snap := waitExit(t, p)
	require.Equal(t, protocol.StatusDone, snap.Status, snap.Stderr)

	want := strings.Join([]string{target.Dir(), target.Dir(), "/home/ci", "/appdata", "12", "me"}, "|")
	assert.Equal(t, want, snap.Result)
}

func TestConcurrentSubmitIDsAreUnique(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.Submit(target, "true", "")
			if err != nil {
				t.Errorf("Submit() error = %v", err)
				return
			}
			ids <- p.ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "missing id %d", i)
	}

	// Submission order equals id order.
	procs := target.Processes()
	for i := 1; i < len(procs); i++ {
		assert.Less(t, procs[i-1].ID(), procs[i].ID())
	}
	for _, p := range procs {
		waitExit(t, p)
	}
}

func TestKillAll(t *testing.T) {
	e := NewExecutor()
	target := newFakeTarget(t, 1)

	running, err := e.Submit(target, "sleep 30", "")
	require.NoError(t, err)
	finished, err := e.Submit(target, "true", "")
	require.NoError(t, err)
	waitExit(t, finished)

	assert.Equal(t, 1, e.KillAll(target))
	snap := waitExit(t, running)
	assert.Equal(t, protocol.StatusError, snap.Status)
}

func TestEndingSignalFallsBackToSentSignal(t *testing.T) {
	cmd := shellCommand("exit 1")
	require.Error(t, cmd.Run())
	sent := "SIGTERM"

	name, ok := endingSignal(cmd.ProcessState, &sent, false)
	require.True(t, ok)
	assert.Equal(t, "SIGTERM", *name)

	// A wait status that can carry signals is trusted over the kill record.
	_, ok = endingSignal(cmd.ProcessState, &sent, true)
	assert.False(t, ok)

	_, ok = endingSignal(cmd.ProcessState, nil, false)
	assert.False(t, ok)
}

func TestWaitDelayBoundsHeldPipes(t *testing.T) {
	e := NewExecutor(WithWaitDelay(100 * time.Millisecond))
	target := newFakeTarget(t, 1)

	// The background sleep inherits stdout and outlives the shell.
	start := time.Now()
	p, err := e.Submit(target, "sleep 3 & echo spawned", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.KillAll(target) })

	snap := waitExit(t, p)
	assert.Less(t, time.Since(start), 2500*time.Millisecond)
	assert.Equal(t, protocol.StatusDone, snap.Status)
	assert.Contains(t, snap.Result, "spawned")
}
