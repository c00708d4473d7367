package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/testagent/internal/events"
	"github.com/mattjoyce/testagent/internal/protocol"
)

const maxShownEvents = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= maxShownEvents {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case protocol.EventCommandStarted:
		typeStyle = theme.StatusRunning
	case protocol.EventCommandKilled, protocol.EventWorkspaceEvicted:
		typeStyle = theme.StatusFailed
	case protocol.EventWorkspaceCreated, protocol.EventWorkspaceKept:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-20s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// describeEvent renders the payload as a short summary.
func describeEvent(e events.Event) string {
	ev, err := e.Decode()
	if err != nil {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}

	parts := []string{fmt.Sprintf("[ws %d]", ev.WorkspaceID)}
	if ev.CommandID > 0 {
		parts = append(parts, fmt.Sprintf("cmd %d", ev.CommandID))
	}
	if ev.Command != "" {
		parts = append(parts, truncate(ev.Command, 40))
	}
	if e.Type == protocol.EventCommandFinished {
		switch {
		case ev.Signal != "":
			parts = append(parts, ev.Signal)
		case ev.Code != nil:
			parts = append(parts, fmt.Sprintf("exit %d", *ev.Code))
		}
	} else if ev.Signal != "" {
		parts = append(parts, ev.Signal)
	}
	return strings.Join(parts, " ")
}
