package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mattjoyce/testagent/internal/protocol"
)

// RemoteCommand is a command submitted to the session's workspace. It holds
// the most recent snapshot the agent returned.
type RemoteCommand struct {
	session *Session
	wsID    int

	mu   sync.Mutex
	snap protocol.Command
}

// StartCommand submits line to run in cwd (relative to the workspace root;
// empty means the root) and returns without waiting for it.
func (s *Session) StartCommand(ctx context.Context, line, cwd string) (*RemoteCommand, error) {
	id, err := s.Ready(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{"cmd": {line}}
	if cwd != "" {
		q.Set("cwd", cwd)
	}
	cmd, err := s.fetchCommand(ctx, http.MethodPost, s.workspacePath(id, "command"), q)
	if err != nil {
		return nil, fmt.Errorf("start %q: %w", line, err)
	}
	s.logger.Debug("command started", "workspace_id", id, "command_id", cmd.ID, "command", line)
	return &RemoteCommand{session: s, wsID: id, snap: *cmd}, nil
}

// RunCommandAndWait starts line and polls until it finishes, whatever the
// outcome.
func (s *Session) RunCommandAndWait(ctx context.Context, line, cwd string) (*RemoteCommand, error) {
	rc, err := s.StartCommand(ctx, line, cwd)
	if err != nil {
		return nil, err
	}
	if _, err := rc.Wait(ctx); err != nil {
		return rc, err
	}
	return rc, nil
}

// RunCommandAndWaitForSuccess is RunCommandAndWait but a command that ends in
// status error yields a *CommandError.
func (s *Session) RunCommandAndWaitForSuccess(ctx context.Context, line, cwd string) (*RemoteCommand, error) {
	rc, err := s.RunCommandAndWait(ctx, line, cwd)
	if err != nil {
		return rc, err
	}
	snap := rc.Snapshot()
	if snap.Status == protocol.StatusError {
		return rc, &CommandError{
			Command: snap.Command,
			Result:  snap.Result,
			Stderr:  snap.Stderr,
			Code:    snap.Code,
			Signal:  snap.Signal,
		}
	}
	return rc, nil
}

// ID returns the command id within its workspace.
func (c *RemoteCommand) ID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.ID
}

// Snapshot returns the last state fetched from the agent.
func (c *RemoteCommand) Snapshot() protocol.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Refresh fetches the current state once.
func (c *RemoteCommand) Refresh(ctx context.Context) (protocol.Command, error) {
	cmd, err := c.session.fetchCommand(ctx, http.MethodGet, c.path(""), nil)
	if err != nil {
		return protocol.Command{}, err
	}
	c.mu.Lock()
	c.snap = *cmd
	c.mu.Unlock()
	return *cmd, nil
}

// Wait polls at the session's fixed interval until the command leaves
// status started. The first failed poll ends the wait.
func (c *RemoteCommand) Wait(ctx context.Context) (protocol.Command, error) {
	for {
		snap, err := c.Refresh(ctx)
		if err != nil {
			return protocol.Command{}, err
		}
		if snap.Status.Terminal() {
			return snap, nil
		}

		t := time.NewTimer(c.session.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return protocol.Command{}, ctx.Err()
		case <-t.C:
		}
	}
}

// Kill sends signal to the command; empty means the agent's default.
func (c *RemoteCommand) Kill(ctx context.Context, signal string) error {
	var q url.Values
	if signal != "" {
		q = url.Values{"signal": {signal}}
	}
	_, err := c.session.doDiscard(ctx, http.MethodPost, c.path("kill"), q)
	return err
}

func (c *RemoteCommand) path(suffix string) string {
	p := c.session.workspacePath(c.wsID, "command/"+strconv.Itoa(c.ID()))
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (s *Session) fetchCommand(ctx context.Context, method, path string, q url.Values) (*protocol.Command, error) {
	resp, err := s.do(ctx, method, path, q, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	cmd, raw, err := protocol.DecodeCommandLenient(resp.Body)
	if err != nil {
		s.logger.Debug("unexpected command body", "path", path, "body", string(raw))
		return nil, err
	}
	return cmd, nil
}
