package protocol

// Status is the lifecycle state of a command.
type Status string

const (
	StatusStarted Status = "started"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusStarted, StatusDone, StatusError:
		return true
	}
	return false
}

// Workspace is the JSON projection of a workspace served by the agent.
type Workspace struct {
	ID          int      `json:"id"`
	Folder      string   `json:"folder"`
	Commands    Commands `json:"commands"`
	NextCommand int      `json:"nextCommand"`
}

// Commands is keyed by the decimal command id.
type Commands map[string]Command

// Command is the JSON projection of a single shell invocation. The live
// process handle never appears here.
type Command struct {
	ID      int     `json:"id"`
	Status  Status  `json:"status"`
	Command string  `json:"command"`
	Result  string  `json:"result"`
	Stderr  string  `json:"stderr,omitempty"`
	Code    *int    `json:"code,omitempty"`
	Signal  *string `json:"signal,omitempty"`
	// TimeTaken is wall-clock milliseconds from spawn to exit.
	TimeTaken *float64 `json:"timeTaken,omitempty"`
}

// Event is a lifecycle notification published on the agent's event stream.
type Event struct {
	Type        string `json:"type"`
	WorkspaceID int    `json:"workspace_id"`
	CommandID   int    `json:"command_id,omitempty"`
	Command     string `json:"command,omitempty"`
	Status      Status `json:"status,omitempty"`
	Code        *int   `json:"code,omitempty"`
	Signal      string `json:"signal,omitempty"`
}

// Event types.
const (
	EventWorkspaceCreated = "workspace.created"
	EventWorkspaceKept    = "workspace.kept"
	EventWorkspaceDone    = "workspace.done"
	EventWorkspaceDeleted = "workspace.deleted"
	EventWorkspaceEvicted = "workspace.evicted"
	EventCommandStarted   = "command.started"
	EventCommandFinished  = "command.finished"
	EventCommandKilled    = "command.killed"
)

// Health is the body of GET /healthz.
type Health struct {
	Status          string  `json:"status"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	Workspaces      int     `json:"workspaces"`
	RunningCommands int     `json:"running_commands"`
}

// HistoryEntry is one finished command as recorded by the agent journal.
type HistoryEntry struct {
	WorkspaceID int      `json:"workspace_id"`
	CommandID   int      `json:"command_id"`
	Command     string   `json:"command"`
	Status      Status   `json:"status"`
	Code        *int     `json:"code,omitempty"`
	Signal      *string  `json:"signal,omitempty"`
	TimeTakenMS *float64 `json:"time_taken_ms,omitempty"`
	FinishedAt  string   `json:"finished_at"`
}
