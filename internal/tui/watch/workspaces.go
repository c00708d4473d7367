package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/testagent/internal/events"
	"github.com/mattjoyce/testagent/internal/protocol"
)

// WorkspaceState tracks a workspace discovered from events.
type WorkspaceState struct {
	ID         int
	State      string // created, kept, done
	Active     map[int]*CommandState
	LastStatus protocol.Status
	LastRun    time.Time
	Gone       bool
}

// CommandState tracks one command execution.
type CommandState struct {
	ID        int
	Command   string
	Status    protocol.Status
	StartTime time.Time
}

// updateWorkspaceState applies one event to the workspace table.
func updateWorkspaceState(workspaces map[int]*WorkspaceState, e events.Event) {
	ev, err := e.Decode()
	if err != nil || ev.WorkspaceID <= 0 {
		return
	}
	ws := getOrCreateWorkspace(workspaces, ev.WorkspaceID)

	switch ev.Type {
	case protocol.EventWorkspaceCreated:
		ws.State = "created"
	case protocol.EventWorkspaceKept:
		ws.State = "kept"
	case protocol.EventWorkspaceDone:
		ws.State = "done"
	case protocol.EventWorkspaceDeleted, protocol.EventWorkspaceEvicted:
		ws.Gone = true
		ws.Active = make(map[int]*CommandState)

	case protocol.EventCommandStarted:
		ws.Active[ev.CommandID] = &CommandState{
			ID:        ev.CommandID,
			Command:   ev.Command,
			Status:    protocol.StatusStarted,
			StartTime: e.At,
		}

	case protocol.EventCommandFinished:
		delete(ws.Active, ev.CommandID)
		ws.LastStatus = ev.Status
		ws.LastRun = e.At
	}

	if ws.Gone {
		pruneGone(workspaces)
	}
}

// pruneGone keeps at most maxGone removed workspaces around for display.
func pruneGone(workspaces map[int]*WorkspaceState) {
	const maxGone = 5
	var gone []int
	for id, ws := range workspaces {
		if ws.Gone {
			gone = append(gone, id)
		}
	}
	if len(gone) <= maxGone {
		return
	}
	sort.Ints(gone)
	for _, id := range gone[:len(gone)-maxGone] {
		delete(workspaces, id)
	}
}

func getOrCreateWorkspace(workspaces map[int]*WorkspaceState, id int) *WorkspaceState {
	ws, ok := workspaces[id]
	if !ok {
		ws = &WorkspaceState{ID: id, Active: make(map[int]*CommandState)}
		workspaces[id] = ws
	}
	return ws
}

// sortedWorkspaceIDs returns ids newest first.
func sortedWorkspaceIDs(workspaces map[int]*WorkspaceState) []int {
	ids := make([]int, 0, len(workspaces))
	for id := range workspaces {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	return ids
}

func renderWorkspaces(workspaces map[int]*WorkspaceState, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if len(workspaces) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("WORKSPACES"),
			theme.Dim.Render("  No workspace activity yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, id := range sortedWorkspaceIDs(workspaces) {
		lines = append(lines, renderWorkspaceRow(workspaces[id], i == selected, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{theme.Title.Render("WORKSPACES")}, lines...)...,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func renderWorkspaceRow(ws *WorkspaceState, isSelected bool, theme Theme) string {
	activeCount := len(ws.Active)

	var stateStr string
	switch {
	case ws.Gone:
		stateStr = theme.StatusDead.Render("[removed]")
	case activeCount > 0:
		stateStr = theme.StatusRunning.Render(fmt.Sprintf("[%d running]", activeCount))
	case ws.State == "kept":
		stateStr = theme.Highlight.Render("[kept]")
	case ws.State == "done":
		stateStr = theme.StatusQueued.Render("[done]")
	default:
		stateStr = theme.Dim.Render("[idle]")
	}

	var lastRunStr string
	if !ws.LastRun.IsZero() {
		ago := time.Since(ws.LastRun).Round(time.Second)
		lastRunStr = fmt.Sprintf("Last: %s %s", formatAgo(ago), statusIcon(ws.LastStatus, theme))
	}

	nameStyle := lipgloss.NewStyle()
	if isSelected {
		nameStyle = nameStyle.Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))
	}

	var line strings.Builder
	fmt.Fprintf(&line, " %s  %s  %s",
		nameStyle.Render(fmt.Sprintf("#%-6d", ws.ID)),
		stateStr,
		lastRunStr,
	)

	ids := make([]int, 0, activeCount)
	for id := range ws.Active {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := ws.Active[id]
		duration := "-"
		if !c.StartTime.IsZero() {
			duration = time.Since(c.StartTime).Round(time.Second).String()
		}
		fmt.Fprintf(&line, "\n    └─ %s %s %s",
			theme.Highlight.Render(fmt.Sprintf("cmd %d", c.ID)),
			truncate(c.Command, 48),
			theme.Dim.Render(duration),
		)
	}

	return line.String()
}

func statusIcon(status protocol.Status, theme Theme) string {
	switch status {
	case protocol.StatusDone:
		return theme.StatusOK.Render("✅")
	case protocol.StatusError:
		return theme.StatusFailed.Render("❌")
	default:
		return ""
	}
}

func formatAgo(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
