package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/testagent/internal/config"
	"github.com/mattjoyce/testagent/internal/log"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runCLI(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
	agentURL   string
	stdout     io.Writer
	stderr     io.Writer

	cfg *config.Config
}

// loadConfig loads the named or discovered config once. Without either the
// defaults apply.
func (r *rootOptions) loadConfig() (*config.Config, error) {
	if r.cfg != nil {
		return r.cfg, nil
	}
	cfg, err := config.LoadOrDefault(r.configPath)
	if err != nil {
		return nil, err
	}
	r.cfg = cfg
	return cfg, nil
}

// url is the agent base URL for client-side commands.
func (r *rootOptions) url() (string, error) {
	if r.agentURL != "" {
		return strings.TrimSuffix(r.agentURL, "/"), nil
	}
	cfg, err := r.loadConfig()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(cfg.Client.URL, "/"), nil
}

// clientLogger logs to stderr so stdout stays for command output.
func (r *rootOptions) clientLogger() *slog.Logger {
	level, format := "warn", "text"
	if r.cfg != nil {
		level = r.cfg.Service.LogLevel
	}
	return log.New(r.stderr, level, format)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "testagent",
		Short:         "Remote test-execution agent and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	defaultConfig := os.Getenv("TESTAGENT_CONFIG")
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to config file (default: discovered)")
	root.PersistentFlags().StringVar(&opts.agentURL, "url", "", "agent base URL (overrides client.url)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newExecCmd(opts))
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newDoctorCmd(opts))
	root.AddCommand(newVersionCmd(opts))
	return root
}
