package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/protocol"
	"github.com/mattjoyce/testagent/internal/workspace"
)

// ErrorResponse is returned on errors. Clients rely on the status code; the
// body is informational.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.store.Stats()
	respondJSON(w, http.StatusOK, protocol.Health{
		Status:          "ok",
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		Workspaces:      st.Workspaces,
		RunningCommands: st.RunningCommands,
	})
}

// handleCreateWorkspace handles POST /test.
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.store.Create(r.Context())
	if err != nil {
		s.logger.Error("failed to create workspace", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create workspace")
		return
	}
	respondJSON(w, http.StatusOK, ws.Snapshot())
}

// handleGetWorkspace handles GET /test/{id}.
func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lookupWorkspace(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ws.Snapshot())
}

// handleKeepWorkspace handles POST /test/{id}/keep.
func (s *Server) handleKeepWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	ws, err := s.store.Keep(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws.Snapshot())
}

// handleDoneWorkspace handles POST /test/{id}/done.
func (s *Server) handleDoneWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	ws, err := s.store.Done(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws.Snapshot())
}

// handleDeleteWorkspace handles POST /test/{id}/delete.
func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleSubmitCommand handles POST /test/{id}/command?cmd=C&cwd=D. It returns
// as soon as the process is spawned.
func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lookupWorkspace(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	line := q.Get("cmd")
	if strings.TrimSpace(line) == "" {
		s.writeError(w, http.StatusBadRequest, "cmd query parameter is required")
		return
	}

	p, err := s.exec.Submit(ws, line, q.Get("cwd"))
	switch {
	case err == nil:
	case errors.Is(err, command.ErrInvalidPath), errors.Is(err, command.ErrEmptyCommand):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	default:
		s.logger.Error("failed to submit command", "workspace_id", ws.ID(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit command")
		return
	}
	respondJSON(w, http.StatusOK, p.Snapshot())
}

// handleGetCommand handles GET /test/{id}/command/{cid}.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lookupWorkspace(w, r)
	if !ok {
		return
	}
	cid, ok := parseID(chi.URLParam(r, "cid"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "command not found")
		return
	}
	snap, err := s.exec.Get(ws, cid)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "command not found")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleKillCommand handles POST /test/{id}/command/{cid}/kill?signal=S.
func (s *Server) handleKillCommand(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lookupWorkspace(w, r)
	if !ok {
		return
	}
	cid, ok := parseID(chi.URLParam(r, "cid"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "command not found")
		return
	}

	err := s.exec.Kill(ws, cid, r.URL.Query().Get("signal"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, command.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "command not found")
	case errors.Is(err, command.ErrInvalidSignal):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Warn("failed to kill command", "workspace_id", ws.ID(), "command_id", cid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to kill command")
	}
}

// handleHistory handles GET /history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// workspaceID parses {id}; anything but a positive integer is an unknown
// workspace.
func (s *Server) workspaceID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "workspace not found")
	}
	return id, ok
}

func (s *Server) lookupWorkspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	id, ok := s.workspaceID(w, r)
	if !ok {
		return nil, false
	}
	ws, err := s.store.Get(id)
	if err != nil {
		s.writeStoreError(w, err)
		return nil, false
	}
	return ws, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, workspace.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	s.logger.Error("workspace operation failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func parseID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
