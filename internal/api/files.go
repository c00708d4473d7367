package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattjoyce/testagent/internal/digest"
)

// handleUploadFile handles POST /test/{id}/file?path=P. The body is streamed
// to disk and 200 is sent only after the file is synced.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lookupWorkspace(w, r)
	if !ok {
		return
	}
	dest, ok := s.resolveFilePath(w, r, ws.Dir(), ws.Resolve)
	if !ok {
		return
	}

	sum, n, err := writeFile(dest, r.Body)
	if err != nil {
		s.logger.Error("upload failed", "workspace_id", ws.ID(), "path", dest, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to write file")
		return
	}

	s.logger.Debug("file uploaded", "workspace_id", ws.ID(), "path", dest, "bytes", n)
	w.Header().Set(digest.Header, sum)
	w.WriteHeader(http.StatusOK)
}

// handleDownloadFile handles GET /test/{id}/file?path=P.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lookupWorkspace(w, r)
	if !ok {
		return
	}
	src, ok := s.resolveFilePath(w, r, ws.Dir(), ws.Resolve)
	if !ok {
		return
	}

	f, err := os.Open(src)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	sum, err := digest.File(src)
	if err != nil {
		s.logger.Error("failed to hash file", "workspace_id", ws.ID(), "path", src, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set(digest.Header, sum)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		// Headers are gone; the client sees a short body.
		s.logger.Warn("download interrupted", "workspace_id", ws.ID(), "path", src, "error", err)
	}
}

// resolveFilePath maps the path query parameter into root. The root itself
// is not a file and is rejected.
func (s *Server) resolveFilePath(w http.ResponseWriter, r *http.Request, root string, resolve func(string) (string, error)) (string, bool) {
	raw := r.URL.Query().Get("path")
	if strings.TrimSpace(raw) == "" {
		s.writeError(w, http.StatusBadRequest, "path query parameter is required")
		return "", false
	}
	p, err := resolve(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	if filepath.Clean(p) == filepath.Clean(root) {
		s.writeError(w, http.StatusBadRequest, "path must name a file inside the workspace")
		return "", false
	}
	return p, true
}

// writeFile streams body to dest, creating parent directories, and returns
// the content digest once the data is on disk.
func writeFile(dest string, body io.Reader) (string, int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}

	dw := digest.NewWriter(f)
	_, copyErr := io.Copy(dw, body)
	syncErr := f.Sync()
	closeErr := f.Close()
	if err := errors.Join(copyErr, syncErr, closeErr); err != nil {
		return "", dw.Len(), err
	}
	return dw.Sum(), dw.Len(), nil
}
