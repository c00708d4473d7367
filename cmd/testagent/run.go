package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/testagent/internal/client"
	"github.com/mattjoyce/testagent/internal/suite"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run SUITE.yaml",
		Short: "Run the suites in a suite file",
		Long: "Each suite gets a fresh workspace: uploads, setup commands, then run commands\n" +
			"under the suite timeout. Suites run in order and a failure does not stop the rest.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuites(cmd.Context(), root, args[0])
		},
	}
}

func runSuites(ctx context.Context, root *rootOptions, path string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	defaultAgent, err := root.url()
	if err != nil {
		return err
	}
	f, err := suite.Load(path, defaultAgent)
	if err != nil {
		return err
	}

	logger := root.clientLogger()
	open := func(ctx context.Context, baseURL string) suite.Session {
		return client.NewSession(ctx, baseURL,
			client.WithPollInterval(cfg.Client.PollInterval),
			client.WithLogger(logger),
		)
	}

	results, err := suite.NewRunner(open, root.stdout, logger).Run(ctx, f)
	printSummary(root, results)
	return err
}

func printSummary(root *rootOptions, results []suite.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(root.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUITE\tRESULT\tWORKSPACE\tDURATION\tERROR")
	for _, r := range results {
		status, msg := "PASS", ""
		if !r.Passed() {
			status, msg = "FAIL", firstLine(r.Err.Error())
		}
		ws := "-"
		if r.WorkspaceID > 0 {
			ws = fmt.Sprint(r.WorkspaceID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Suite, status, ws, r.Duration.Round(time.Millisecond), msg)
	}
	_ = w.Flush()
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
