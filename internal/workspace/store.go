package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/protocol"
)

// DefaultRetention is how many unexempted workspaces are kept before the
// oldest is evicted.
const DefaultRetention = 10

// Killer stops the running commands of a workspace. *command.Executor
// satisfies it.
type Killer interface {
	KillAll(t command.Target) int
}

// Store is the in-memory workspace registry with its FIFO retention queue.
type Store struct {
	fs        *fsLayout
	retention int
	killer    Killer
	logger    *slog.Logger
	observers []Observer

	mu         sync.Mutex
	nextID     int
	workspaces map[int]*Workspace
	queue      []int

	cleanups sync.WaitGroup
}

var _ Manager = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRetention sets the retention queue capacity.
func WithRetention(n int) Option {
	return func(s *Store) { s.retention = n }
}

// WithKiller sets what stops commands on done, delete and eviction.
func WithKiller(k Killer) Option {
	return func(s *Store) { s.killer = k }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithObserver registers a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// NewStore creates the base directory if needed and seeds the id counter past
// any numeric directories already in it. Those directories are left alone.
func NewStore(baseDir string, opts ...Option) (*Store, error) {
	s := &Store{
		retention:  DefaultRetention,
		logger:     slog.Default(),
		workspaces: map[int]*Workspace{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %d", s.retention)
	}

	fs, err := newFSLayout(baseDir, s.logger)
	if err != nil {
		return nil, err
	}
	s.fs = fs

	highest, err := fs.highestID()
	if err != nil {
		return nil, err
	}
	s.nextID = highest + 1
	if highest > 0 {
		s.logger.Info("found existing workspace directories", "base_dir", fs.baseDir, "next_id", s.nextID)
	}
	return s, nil
}

// BaseDir returns the absolute directory holding all workspaces.
func (s *Store) BaseDir() string { return s.fs.baseDir }

// Create implements Manager.
func (s *Store) Create(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	dir, err := s.fs.create(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ws := newWorkspace(id, dir)
	s.workspaces[id] = ws
	s.queue = append(s.queue, id)

	var evicted []*Workspace
	for len(s.queue) > s.retention {
		oldest := s.queue[0]
		s.queue = s.queue[1:]
		if old, ok := s.workspaces[oldest]; ok {
			delete(s.workspaces, oldest)
			evicted = append(evicted, old)
		}
	}
	s.mu.Unlock()

	s.logger.Info("workspace created", "workspace_id", id, "dir", dir)
	s.notify(protocol.EventWorkspaceCreated, ws)

	for _, old := range evicted {
		s.logger.Info("evicting workspace", "workspace_id", old.id)
		s.teardown(old)
		s.notify(protocol.EventWorkspaceEvicted, old)
	}
	return ws, nil
}

// Get implements Manager.
func (s *Store) Get(id int) (*Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return ws, nil
}

// Keep implements Manager.
func (s *Store) Keep(id int) (*Workspace, error) {
	s.mu.Lock()
	ws, ok := s.workspaces[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.dequeue(id)
	s.mu.Unlock()

	s.logger.Info("workspace kept", "workspace_id", id)
	s.notify(protocol.EventWorkspaceKept, ws)
	return ws, nil
}

// Done implements Manager. The workspace stays in the retention queue so a
// finished run is still evicted in turn.
func (s *Store) Done(id int) (*Workspace, error) {
	ws, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	killed := s.kill(ws)
	s.logger.Info("workspace done", "workspace_id", id, "killed_commands", killed)
	s.notify(protocol.EventWorkspaceDone, ws)
	return ws, nil
}

// Delete implements Manager.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	ws, ok := s.workspaces[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(s.workspaces, id)
	s.dequeue(id)
	s.mu.Unlock()

	s.logger.Info("deleting workspace", "workspace_id", id)
	s.teardown(ws)
	s.notify(protocol.EventWorkspaceDeleted, ws)
	return nil
}

// Stats implements Manager.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	all := make([]*Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		all = append(all, ws)
	}
	st := Stats{Workspaces: len(s.workspaces), Retained: len(s.queue)}
	s.mu.Unlock()

	for _, ws := range all {
		st.RunningCommands += ws.running()
	}
	return st
}

// Wait blocks until background directory removals have finished.
func (s *Store) Wait() {
	s.cleanups.Wait()
}

// teardown kills commands without waiting for them and removes the directory
// in the background.
func (s *Store) teardown(ws *Workspace) {
	s.kill(ws)
	s.cleanups.Add(1)
	go func() {
		defer s.cleanups.Done()
		_ = s.fs.cleanupDir(ws.id, ws.dir)
	}()
}

func (s *Store) kill(ws *Workspace) int {
	if s.killer == nil {
		return 0
	}
	return s.killer.KillAll(ws)
}

// dequeue removes id from the retention queue. Caller holds s.mu.
func (s *Store) dequeue(id int) {
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(event string, ws *Workspace) {
	for _, o := range s.observers {
		o.WorkspaceChanged(event, ws)
	}
}
