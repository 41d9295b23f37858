package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tools.zach/dev/richcord/internal/logger"
)

func (a *app) logsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tail, err := logger.ReadTail(a.dir.Log(), lines)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no daemon log at %s yet", a.dir.Log())
			}
			if err != nil {
				return err
			}
			if tail == "" {
				return nil
			}
			_, err = io.WriteString(cmd.OutOrStdout(), tail+"\n")
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines to show")
	return cmd
}
