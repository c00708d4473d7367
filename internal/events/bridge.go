package events

import (
	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/protocol"
	"github.com/mattjoyce/testagent/internal/workspace"
)

// Bridge publishes workspace and command lifecycle changes onto a Hub.
type Bridge struct {
	hub *Hub
}

var (
	_ command.Observer   = (*Bridge)(nil)
	_ workspace.Observer = (*Bridge)(nil)
)

// NewBridge returns a Bridge publishing to hub.
func NewBridge(hub *Hub) *Bridge {
	return &Bridge{hub: hub}
}

func (b *Bridge) WorkspaceChanged(event string, ws *workspace.Workspace) {
	b.hub.Publish(protocol.Event{Type: event, WorkspaceID: ws.ID()})
}

func (b *Bridge) CommandStarted(workspaceID int, p *command.Process) {
	b.hub.Publish(protocol.Event{
		Type:        protocol.EventCommandStarted,
		WorkspaceID: workspaceID,
		CommandID:   p.ID(),
		Command:     p.Line(),
		Status:      protocol.StatusStarted,
	})
}

func (b *Bridge) CommandFinished(workspaceID int, p *command.Process) {
	snap := p.Snapshot()
	ev := protocol.Event{
		Type:        protocol.EventCommandFinished,
		WorkspaceID: workspaceID,
		CommandID:   snap.ID,
		Command:     snap.Command,
		Status:      snap.Status,
		Code:        snap.Code,
	}
	if snap.Signal != nil {
		ev.Signal = *snap.Signal
	}
	b.hub.Publish(ev)
}

func (b *Bridge) CommandKilled(workspaceID int, p *command.Process, sig string) {
	b.hub.Publish(protocol.Event{
		Type:        protocol.EventCommandKilled,
		WorkspaceID: workspaceID,
		CommandID:   p.ID(),
		Command:     p.Line(),
		Signal:      sig,
	})
}
