package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/testagent/internal/client"
	"github.com/mattjoyce/testagent/internal/sequence"
)

const cleanupTimeout = 10 * time.Second

type execFlags struct {
	uploads []string
	cwd     string
	keep    bool
	timeout time.Duration
}

func newExecCmd(root *rootOptions) *cobra.Command {
	flags := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec [flags] -- COMMAND...",
		Short: "Run commands in a fresh workspace on an agent",
		Long: "Create a workspace, upload files, run each COMMAND in order until one fails,\n" +
			"print the output and release the workspace.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), root, flags, args)
		},
	}
	cmd.Flags().StringArrayVar(&flags.uploads, "upload", nil, "upload local:remote before running (repeatable)")
	cmd.Flags().StringVar(&flags.cwd, "cwd", "", "working directory inside the workspace")
	cmd.Flags().BoolVar(&flags.keep, "keep", false, "keep the workspace instead of releasing it")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "overall time limit for the commands (default client.timeout)")
	return cmd
}

func runExec(ctx context.Context, root *rootOptions, flags *execFlags, lines []string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	agentURL, err := root.url()
	if err != nil {
		return err
	}
	uploads := make([][2]string, 0, len(flags.uploads))
	for _, arg := range flags.uploads {
		local, remote, err := parseUpload(arg)
		if err != nil {
			return err
		}
		uploads = append(uploads, [2]string{local, remote})
	}

	logger := root.clientLogger()
	session := client.NewSession(ctx, agentURL,
		client.WithPollInterval(cfg.Client.PollInterval),
		client.WithLogger(logger),
	)
	defer release(session, flags.keep, root)

	id, err := session.Ready(ctx)
	if err != nil {
		return fmt.Errorf("create workspace on %s: %w", agentURL, err)
	}
	fmt.Fprintf(root.stderr, "workspace %d on %s\n", id, agentURL)

	for _, u := range uploads {
		if err := session.UploadPath(ctx, u[0], u[1]); err != nil {
			return fmt.Errorf("upload %s: %w", u[0], err)
		}
	}

	steps := make([]sequence.Step, len(lines))
	for i, line := range lines {
		steps[i] = sequence.Step{Command: line, Cwd: flags.cwd}
	}

	timeout := flags.timeout
	if timeout == 0 {
		timeout = cfg.Client.Timeout
	}
	var done []*client.RemoteCommand
	err = client.WithTimeout(ctx, timeout, func(ctx context.Context) error {
		var runErr error
		done, runErr = sequence.RunSteps(ctx, session, steps)
		return runErr
	})

	for _, rc := range done {
		fmt.Fprint(root.stdout, rc.Snapshot().Result)
	}
	var cmdErr *client.CommandError
	if errors.As(err, &cmdErr) {
		fmt.Fprint(root.stdout, cmdErr.Result)
		fmt.Fprint(root.stderr, cmdErr.Stderr)
		code := 1
		if cmdErr.Code != nil && *cmdErr.Code > 0 && *cmdErr.Code < 126 {
			code = *cmdErr.Code
		}
		return &exitError{code: code, err: err}
	}
	return err
}

// release keeps or cleans up the workspace on a fresh context, so it still
// runs after an interrupt.
func release(session *client.Session, keep bool, root *rootOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if keep {
		id, err := session.Ready(ctx)
		if err != nil {
			return
		}
		if err := session.Keep(ctx); err != nil {
			fmt.Fprintf(root.stderr, "warning: keep workspace: %v\n", err)
			return
		}
		fmt.Fprintf(root.stderr, "workspace %d kept\n", id)
		return
	}
	if err := session.Cleanup(ctx); err != nil {
		fmt.Fprintf(root.stderr, "warning: release workspace: %v\n", err)
	}
}

// parseUpload splits local:remote on the last colon so Windows drive
// letters survive. Without a remote part the file keeps its base name.
func parseUpload(arg string) (string, string, error) {
	local, remote := arg, ""
	if i := strings.LastIndex(arg, ":"); i >= 0 && !isDriveColon(arg, i) {
		local, remote = arg[:i], arg[i+1:]
	}
	if local == "" {
		return "", "", fmt.Errorf("--upload %q: missing local path", arg)
	}
	if remote == "" {
		remote = filepath.Base(local)
	}
	return local, remote, nil
}

// isDriveColon reports whether the colon at i is the one in "C:\".
func isDriveColon(arg string, i int) bool {
	return i == 1 && len(arg) > 2 && (arg[2] == '\\' || arg[2] == '/')
}
