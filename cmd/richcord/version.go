package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) versionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ver := resolveVersion()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(out, ver); err != nil {
				return err
			}
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			res, err := a.checker().Check(ctx, ver)
			if err != nil {
				return fmt.Errorf("checking for updates: %w", err)
			}
			if res.Newer {
				_, err = fmt.Fprintf(out, "version %s is available\n", res.Latest)
			} else {
				_, err = fmt.Fprintf(out, "up to date (latest release %s)\n", res.Latest)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
