package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/testagent/internal/doctor"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and the local environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			result := doctor.New(cfg).Validate()
			if jsonOut {
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(root.stdout, out)
			} else {
				if cfg.SourcePath != "" {
					fmt.Fprintf(root.stdout, "Config: %s\n", cfg.SourcePath)
				} else {
					fmt.Fprintln(root.stdout, "Config: defaults (no config file found)")
				}
				fmt.Fprint(root.stdout, doctor.FormatHuman(result))
			}
			if !result.Valid {
				return &exitError{code: 1, err: errors.New("configuration invalid")}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the report as JSON")
	return cmd
}
