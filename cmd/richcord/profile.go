package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tools.zach/dev/richcord/internal/presence"
)

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage saved presences",
	}
	cmd.AddCommand(
		a.profileListCmd(),
		a.profileSaveCmd(),
		a.profileApplyCmd(),
		a.profileDeleteCmd(),
	)
	return cmd
}

func (a *app) profileListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved profiles",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.profiles().List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				_, err := fmt.Fprintln(out, "no profiles saved")
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDETAILS\tSTATE\tUPDATED")
			for _, p := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Presence.Details, p.Presence.State, humanize.Time(p.UpdatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the profiles as JSON")
	return cmd
}

func (a *app) profileSaveCmd() *cobra.Command {
	var (
		flags   presenceFlags
		current bool
	)
	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a presence under a name, replacing one with the same name",
		Example: `  richcord profile save focus -d "Deep work" --elapsed
  richcord profile save gaming --current`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var desc presence.Description
			if current {
				st, err := a.client().Status(cmd.Context())
				if err != nil {
					return daemonError(err)
				}
				if st.Presence == nil {
					return fmt.Errorf("no presence is currently shown")
				}
				desc = *st.Presence
			} else {
				var err error
				if desc, err = flags.description(cmd); err != nil {
					return err
				}
			}

			p, err := a.profiles().Save(args[0], desc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved profile %s (%s)\n", p.Name, p.ID)
			return err
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&current, "current", false, "save the presence the daemon is showing now")
	cmd.MarkFlagsMutuallyExclusive("current", "file")
	return cmd
}

func (a *app) profileApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <name-or-id>",
		Short: "Show a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profiles().Get(args[0])
			if err != nil {
				return err
			}
			desc := p.Presence
			if err := a.resolveImages(cmd.Context(), &desc); err != nil {
				return err
			}
			if err := a.client().SetPresence(cmd.Context(), desc); err != nil {
				return daemonError(err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "applied profile %s\n", p.Name)
			return err
		},
	}
}

func (a *app) profileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name-or-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.profiles().Delete(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted profile %s\n", args[0])
			return err
		},
	}
}
