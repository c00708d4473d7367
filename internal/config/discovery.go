package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoConfig is returned by DiscoverConfigPath when none of the standard
// locations hold a config file.
var ErrNoConfig = errors.New("no config found (checked: $TESTAGENT_CONFIG, ~/.config/testagent/config.yaml, /etc/testagent/config.yaml, ./config.yaml)")

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $TESTAGENT_CONFIG, ~/.config/testagent/config.yaml,
// /etc/testagent/config.yaml, ./config.yaml.
func DiscoverConfigPath() (string, error) {
	return discoverIn(candidatePaths())
}

func candidatePaths() []string {
	var paths []string
	if p := os.Getenv("TESTAGENT_CONFIG"); p != "" {
		paths = append(paths, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "testagent", "config.yaml"))
	}
	return append(paths, "/etc/testagent/config.yaml", "./config.yaml")
}

func discoverIn(paths []string) (string, error) {
	for _, p := range paths {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", ErrNoConfig
}

// LoadOrDefault loads path when given, otherwise the discovered config, and
// falls back to Defaults() when nothing is discovered.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	discovered, err := DiscoverConfigPath()
	if errors.Is(err, ErrNoConfig) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	return Load(discovered)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
