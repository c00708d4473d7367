package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// fsLayout owns the on-disk side of the store: one directory per workspace,
// named after its numeric id, under baseDir.
type fsLayout struct {
	baseDir string
	logger  *slog.Logger
}

func newFSLayout(baseDir string, logger *slog.Logger) (*fsLayout, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}
	return &fsLayout{baseDir: abs, logger: logger}, nil
}

func (l *fsLayout) path(id int) string {
	return filepath.Join(l.baseDir, strconv.Itoa(id))
}

func (l *fsLayout) create(id int) (string, error) {
	dir := l.path(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %d: %w", id, err)
	}
	return dir, nil
}

// highestID returns the largest numeric directory name under baseDir, or 0.
// Anything else in the directory is ignored.
func (l *fsLayout) highestID() (int, error) {
	entries, err := os.ReadDir(l.baseDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read workspace base directory: %w", err)
	}

	highest := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil || id <= 0 {
			continue
		}
		if id > highest {
			highest = id
		}
	}
	return highest, nil
}

// cleanupDir removes dir recursively, logging any failure before returning it.
func (l *fsLayout) cleanupDir(id int, dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		l.logger.Warn("failed to remove workspace directory",
			"workspace_id", id, "dir", dir, "error", err)
		return err
	}
	l.logger.Debug("removed workspace directory", "workspace_id", id, "dir", dir)
	return nil
}
