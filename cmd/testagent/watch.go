package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/testagent/internal/tui"
	"github.com/mattjoyce/testagent/internal/tui/watch"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of an agent's workspaces and commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentURL, err := root.url()
			if err != nil {
				return err
			}
			return watch.Run(cmd.Context(), agentURL)
		},
	}
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit       int
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the agent's finished-command journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentURL, err := root.url()
			if err != nil {
				return err
			}
			if interactive {
				return tui.RunHistory(cmd.Context(), agentURL, limit)
			}
			entries, err := tui.FetchHistory(cmd.Context(), agentURL, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(root.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tWS\tCMD\tSTATUS\tEXIT\tCOMMAND")
			for _, e := range entries {
				exit := "-"
				switch {
				case e.Signal != nil:
					exit = *e.Signal
				case e.Code != nil:
					exit = fmt.Sprint(*e.Code)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n", e.FinishedAt, e.WorkspaceID, e.CommandID, e.Status, exit, e.Command)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "browse in a terminal UI")
	return cmd
}
