package workspace

import (
	"sort"
	"strconv"
	"sync"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/protocol"
)

// Workspace is one isolated directory plus the commands run inside it.
type Workspace struct {
	id  int
	dir string

	mu       sync.Mutex
	next     int
	commands map[int]*command.Process
}

var _ command.Target = (*Workspace)(nil)

func newWorkspace(id int, dir string) *Workspace {
	return &Workspace{id: id, dir: dir, next: 1, commands: map[int]*command.Process{}}
}

// ID returns the workspace id.
func (w *Workspace) ID() int { return w.id }

// Dir returns the absolute workspace root.
func (w *Workspace) Dir() string { return w.dir }

// Track implements command.Target.
func (w *Workspace) Track(start func(cid int) *command.Process) *command.Process {
	w.mu.Lock()
	defer w.mu.Unlock()
	cid := w.next
	w.next++
	p := start(cid)
	w.commands[cid] = p
	return p
}

// Lookup implements command.Target.
func (w *Workspace) Lookup(cid int) (*command.Process, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.commands[cid]
	return p, ok
}

// Processes returns the commands in submission order.
func (w *Workspace) Processes() []*command.Process {
	w.mu.Lock()
	out := make([]*command.Process, 0, len(w.commands))
	for _, p := range w.commands {
		out = append(out, p)
	}
	w.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Resolve maps a client-supplied path onto the workspace root.
func (w *Workspace) Resolve(path string) (string, error) {
	return command.ResolveIn(w.dir, path)
}

// Snapshot returns the JSON projection of the workspace.
func (w *Workspace) Snapshot() protocol.Workspace {
	procs := w.Processes()
	w.mu.Lock()
	next := w.next
	w.mu.Unlock()

	cmds := make(protocol.Commands, len(procs))
	for _, p := range procs {
		cmds[strconv.Itoa(p.ID())] = p.Snapshot()
	}
	return protocol.Workspace{
		ID:          w.id,
		Folder:      w.dir,
		Commands:    cmds,
		NextCommand: next,
	}
}

func (w *Workspace) running() int {
	n := 0
	for _, p := range w.Processes() {
		if p.Running() {
			n++
		}
	}
	return n
}
