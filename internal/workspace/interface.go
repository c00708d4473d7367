package workspace

import (
	"context"
	"errors"
)

// ErrNotFound is returned for workspace ids that were never created or have
// since been deleted or evicted.
var ErrNotFound = errors.New("workspace not found")

// Stats is a point-in-time count of agent state.
type Stats struct {
	Workspaces      int
	Retained        int
	RunningCommands int
}

// Manager governs the lifecycle of test workspaces.
type Manager interface {
	// Create allocates the next id, creates its directory and enqueues it for
	// retention, evicting the oldest queued workspaces beyond capacity.
	Create(ctx context.Context) (*Workspace, error)

	// Get resolves a live workspace.
	Get(id int) (*Workspace, error)

	// Keep exempts a workspace from eviction.
	Keep(id int) (*Workspace, error)

	// Done stops running commands but leaves files in place. It does not
	// dequeue the workspace, so a finished run is still evicted in turn; only
	// Keep exempts one.
	Done(id int) (*Workspace, error)

	// Delete stops running commands, forgets the workspace and removes its
	// directory in the background.
	Delete(id int) error

	Stats() Stats
}

// Observer is told about workspace lifecycle changes. event is one of the
// protocol.EventWorkspace* names.
type Observer interface {
	WorkspaceChanged(event string, ws *Workspace)
}
