// Package doctor checks testagent configuration and the host it runs on.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/config"
	"github.com/mattjoyce/testagent/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var metricNamespaceRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Doctor validates a loaded configuration against the local environment.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateAgentConfig(r)
	d.validateBaseDir(r)
	d.validateShell(r)
	d.validateHistory(r)
	d.validateMetrics(r)
	d.validateClient(r)
	d.warnExposedListener(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks logging settings.
func (d *Doctor) validateServiceConfig(r *Result) {
	switch strings.ToLower(d.cfg.Service.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		d.addError(r, "service", "service.log_level",
			fmt.Sprintf("unknown log level %q", d.cfg.Service.LogLevel))
	}
	switch strings.ToLower(d.cfg.Service.LogFormat) {
	case "json", "text":
	default:
		d.addError(r, "service", "service.log_format",
			fmt.Sprintf("unknown log format %q", d.cfg.Service.LogFormat))
	}
}

// validateAgentConfig checks the listener, retention and kill signal.
func (d *Doctor) validateAgentConfig(r *Result) {
	a := d.cfg.Agent
	if _, port, err := net.SplitHostPort(a.Listen); err != nil {
		d.addError(r, "agent", "agent.listen", fmt.Sprintf("invalid listen address %q: %v", a.Listen, err))
	} else if port == "" {
		d.addError(r, "agent", "agent.listen", "listen address has no port")
	}
	if a.Retention <= 0 {
		d.addError(r, "agent", "agent.retention", "retention must be positive")
	} else if a.Retention > 1000 {
		d.addWarning(r, "agent", "agent.retention",
			fmt.Sprintf("retention %d keeps a lot of workspaces on disk", a.Retention))
	}
	if _, err := command.ParseSignal(a.DefaultSignal); err != nil {
		d.addError(r, "agent", "agent.default_signal", err.Error())
	}
}

// validateBaseDir checks the workspace root can be written.
func (d *Doctor) validateBaseDir(r *Result) {
	dir := d.cfg.Agent.BaseDir
	if strings.TrimSpace(dir) == "" {
		d.addError(r, "agent", "agent.base_dir", "base_dir is required")
		return
	}
	if err := storage.CheckLocal(dir); err != nil {
		d.addError(r, "agent", "agent.base_dir", err.Error())
	}
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		d.addWarning(r, "agent", "agent.base_dir", fmt.Sprintf("%s does not exist yet; it will be created", dir))
		return
	case err != nil:
		d.addError(r, "agent", "agent.base_dir", err.Error())
		return
	case !info.IsDir():
		d.addError(r, "agent", "agent.base_dir", fmt.Sprintf("%s is not a directory", dir))
		return
	}

	scratch, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		d.addError(r, "agent", "agent.base_dir", fmt.Sprintf("%s is not writable: %v", dir, err))
		return
	}
	name := scratch.Name()
	_ = scratch.Close()
	_ = os.Remove(name)
}

// validateShell checks the shell commands are run through exists.
func (d *Doctor) validateShell(r *Result) {
	shell := "sh"
	if runtime.GOOS == "windows" {
		shell = "cmd"
	}
	if _, err := d.lookPath(shell); err != nil {
		d.addError(r, "host", "", fmt.Sprintf("shell %q not found in PATH: %v", shell, err))
	}
}

// validateHistory checks the journal database location.
func (d *Doctor) validateHistory(r *Result) {
	h := d.cfg.History
	if h.Path == "" {
		return
	}
	if err := storage.CheckLocal(h.Path); err != nil {
		d.addError(r, "history", "history.path", err.Error())
	}
	if h.Limit < 0 {
		d.addError(r, "history", "history.limit", "limit must not be negative")
	}
}

// validateMetrics checks the exposition namespace.
func (d *Doctor) validateMetrics(r *Result) {
	m := d.cfg.Metrics
	if !m.Enabled {
		return
	}
	if !metricNamespaceRe.MatchString(m.Namespace) {
		d.addError(r, "metrics", "metrics.namespace",
			fmt.Sprintf("namespace %q is not a valid metric name prefix", m.Namespace))
	}
}

// validateClient checks the controller-side defaults.
func (d *Doctor) validateClient(r *Result) {
	c := d.cfg.Client
	if c.URL == "" {
		return
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		d.addError(r, "client", "client.url", fmt.Sprintf("client url %q must be an http(s) URL", c.URL))
	}
}

// warnExposedListener flags listeners reachable from other hosts; the agent
// has no authentication.
func (d *Doctor) warnExposedListener(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.Agent.Listen)
	if err != nil {
		return
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addWarning(r, "agent", "agent.listen",
			"agent accepts unauthenticated commands from the network; restrict access to trusted hosts")
	}
}

// warnMissingEnvVars warns about ${VAR} references left unresolved.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := map[string]string{
		"agent.listen":   d.cfg.Agent.Listen,
		"agent.base_dir": d.cfg.Agent.BaseDir,
		"history.path":   d.cfg.History.Path,
		"client.url":     d.cfg.Client.URL,
	}
	for field, value := range fields {
		for _, m := range envVarRe.FindAllStringSubmatch(value, -1) {
			d.addWarning(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", m[1]))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
