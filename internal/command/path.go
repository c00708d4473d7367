package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveIn joins rel onto root and rejects results outside root. A leading
// separator in rel is still relative to root. An empty rel resolves to root.
func ResolveIn(root, rel string) (string, error) {
	root = filepath.Clean(root)
	abs := filepath.Join(root, filepath.FromSlash(strings.TrimSpace(rel)))

	r, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes workspace root", ErrInvalidPath, rel)
	}
	return abs, nil
}
