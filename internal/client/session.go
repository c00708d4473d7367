// Package client drives a remote test agent: it allocates a workspace, moves
// files in and out of it and runs commands there until they finish.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/testagent/internal/protocol"
)

// DefaultPollInterval is the fixed delay between status polls.
const DefaultPollInterval = time.Second

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 4 << 10

// Session is one workspace on one agent. Every operation waits for the
// workspace to be allocated first.
type Session struct {
	baseURL      string
	http         *http.Client
	logger       *slog.Logger
	pollInterval time.Duration

	ready chan struct{}
	id    int
	err   error
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the HTTP client. The default has no overall timeout;
// callers bound operations through their context or WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.http = c }
}

// WithPollInterval sets the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) { s.pollInterval = d }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// NewSession asks the agent at baseURL for a new workspace in the background
// and returns immediately. Use Ready to learn the outcome.
func NewSession(ctx context.Context, baseURL string, opts ...Option) *Session {
	s := &Session{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{},
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		ready:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	go s.allocate(ctx)
	return s
}

func (s *Session) allocate(ctx context.Context) {
	defer close(s.ready)

	ws, err := s.createWorkspace(ctx)
	if err != nil {
		s.err = fmt.Errorf("create workspace on %s: %w", s.baseURL, err)
		s.logger.Warn("failed to create remote workspace", "agent", s.baseURL, "error", err)
		return
	}
	s.id = ws.ID
	s.logger.Info("remote workspace ready", "agent", s.baseURL, "workspace_id", ws.ID, "folder", ws.Folder)
}

func (s *Session) createWorkspace(ctx context.Context) (*protocol.Workspace, error) {
	return s.fetchWorkspace(ctx, http.MethodPost, "/test")
}

func (s *Session) fetchWorkspace(ctx context.Context, method, path string) (*protocol.Workspace, error) {
	resp, err := s.do(ctx, method, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	ws, raw, err := protocol.DecodeWorkspaceLenient(resp.Body)
	if err != nil {
		s.logger.Debug("unexpected workspace body", "path", path, "body", string(raw))
		return nil, err
	}
	return ws, nil
}

// Ready blocks until the workspace is allocated and returns its id.
func (s *Session) Ready(ctx context.Context) (int, error) {
	select {
	case <-s.ready:
		return s.id, s.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// BaseURL returns the agent URL without a trailing slash.
func (s *Session) BaseURL() string { return s.baseURL }

// Workspace fetches the current workspace snapshot.
func (s *Session) Workspace(ctx context.Context) (*protocol.Workspace, error) {
	id, err := s.Ready(ctx)
	if err != nil {
		return nil, err
	}
	return s.fetchWorkspace(ctx, http.MethodGet, s.workspacePath(id, ""))
}

// Keep exempts the workspace from eviction.
func (s *Session) Keep(ctx context.Context) error {
	return s.post(ctx, "keep")
}

// Delete stops the workspace's commands and removes it on the agent.
func (s *Session) Delete(ctx context.Context) error {
	return s.post(ctx, "delete")
}

// Cleanup marks the workspace done. A session that never became ready or a
// workspace the agent no longer knows is not an error.
func (s *Session) Cleanup(ctx context.Context) error {
	id, err := s.Ready(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return nil
	}
	_, err = s.doDiscard(ctx, http.MethodPost, s.workspacePath(id, "done"), nil)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("workspace already gone", "workspace_id", id)
		return nil
	}
	return err
}

func (s *Session) post(ctx context.Context, action string) error {
	id, err := s.Ready(ctx)
	if err != nil {
		return err
	}
	_, err = s.doDiscard(ctx, http.MethodPost, s.workspacePath(id, action), nil)
	return err
}

func (s *Session) workspacePath(id int, suffix string) string {
	p := "/test/" + strconv.Itoa(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// do sends a request and returns the response when the agent answered 200.
// Any other status is drained into a *StatusError.
func (s *Session) do(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Response, error) {
	target := s.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return resp, nil
}

func (s *Session) doDiscard(ctx context.Context, method, path string, query url.Values) (http.Header, error) {
	resp, err := s.do(ctx, method, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Header, nil
}
