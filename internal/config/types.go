package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete testagent configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Agent   AgentConfig   `yaml:"agent"`
	History HistoryConfig `yaml:"history,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Client  ClientConfig  `yaml:"client,omitempty"`

	// SourcePath is the file the config was loaded from; empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// AgentConfig defines the remote test agent settings.
type AgentConfig struct {
	Listen string `yaml:"listen"`
	// BaseDir holds one directory per workspace, named after its numeric id.
	BaseDir string `yaml:"base_dir"`
	// Retention is the number of unexempted workspaces kept before the oldest is evicted.
	Retention       int           `yaml:"retention"`
	DefaultSignal   string        `yaml:"default_signal"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WaitDelay bounds how long a finished command waits on output pipes
	// still held open by its background children.
	WaitDelay time.Duration `yaml:"wait_delay"`
}

// HistoryConfig defines the finished-command journal. An empty path disables it.
type HistoryConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// MetricsConfig defines Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// ClientConfig defines controller-side defaults used by exec, run and watch.
type ClientConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "testagent",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Agent: AgentConfig{
			Listen:          "0.0.0.0:3000",
			BaseDir:         defaultBaseDir(),
			Retention:       10,
			DefaultSignal:   "SIGTERM",
			ShutdownTimeout: 5 * time.Second,
			WaitDelay:       10 * time.Second,
		},
		History: HistoryConfig{
			Limit: 100,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "testagent",
		},
		Client: ClientConfig{
			URL:          "http://127.0.0.1:3000",
			PollInterval: time.Second,
		},
	}
}

// defaultBaseDir mirrors where the agent has always kept workspaces: a folder
// in the user's home (or APPDATA) directory.
func defaultBaseDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("APPDATA")
	}
	if home == "" {
		if dir, err := os.UserHomeDir(); err == nil {
			home = dir
		}
	}
	if home == "" {
		return filepath.Join(os.TempDir(), "testagent")
	}
	return filepath.Join(home, "testagent")
}
