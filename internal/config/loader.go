package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/testagent/internal/command"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Values omitted from the
// file keep their Defaults().
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes YAML over Defaults(), applies ${VAR} interpolation and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.Agent.BaseDir = expandHome(cfg.Agent.BaseDir)
	cfg.History.Path = expandHome(cfg.History.Path)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validation can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// ExpandEnv applies the same ${VAR} interpolation used for config files.
func ExpandEnv(input string) string {
	return interpolateEnv(input)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if strings.TrimSpace(cfg.Agent.Listen) == "" {
		return fmt.Errorf("agent.listen is required")
	}
	if strings.TrimSpace(cfg.Agent.BaseDir) == "" {
		return fmt.Errorf("agent.base_dir is required")
	}
	if envVarPattern.MatchString(cfg.Agent.BaseDir) {
		matches := envVarPattern.FindStringSubmatch(cfg.Agent.BaseDir)
		return fmt.Errorf("agent.base_dir: environment variable ${%s} is not set", matches[1])
	}
	if cfg.Agent.Retention <= 0 {
		return fmt.Errorf("agent.retention must be positive")
	}
	if _, err := command.ParseSignal(cfg.Agent.DefaultSignal); err != nil {
		return fmt.Errorf("agent.default_signal: %w", err)
	}
	if cfg.Agent.ShutdownTimeout < 0 {
		return fmt.Errorf("agent.shutdown_timeout must not be negative")
	}
	if cfg.Agent.WaitDelay < 0 {
		return fmt.Errorf("agent.wait_delay must not be negative")
	}

	if cfg.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}

	if cfg.Client.PollInterval < 0 {
		return fmt.Errorf("client.poll_interval must not be negative")
	}
	if cfg.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}

	return nil
}
