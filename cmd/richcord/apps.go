package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tools.zach/dev/richcord/internal/apps"
	"tools.zach/dev/richcord/internal/imagehost"
	"tools.zach/dev/richcord/internal/tui"
)

func (a *app) appsCmd() *cobra.Command {
	var pick, asJSON bool
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List running applications, or pick one to show as presence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.newLister(a.cfg).List(cmd.Context())
			if err != nil {
				return err
			}
			if pick {
				return a.pickApp(cmd, list)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return writeApps(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().BoolVarP(&pick, "pick", "p", false, "choose an app interactively and show it as your presence")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the list as JSON")
	cmd.MarkFlagsMutuallyExclusive("pick", "json")
	return cmd
}

func writeApps(w io.Writer, list []apps.App) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "no applications with a visible window")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPID\tWINDOW")
	for _, app := range list {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", app.Name, app.PID, app.Title)
	}
	return tw.Flush()
}

func (a *app) pickApp(cmd *cobra.Command, list []apps.App) error {
	if len(list) == 0 {
		return errors.New("no applications with a visible window")
	}
	if !a.isTerminal() {
		return errors.New("--pick needs an interactive terminal")
	}

	chosen, ok, err := a.pick(cmd.Context(), list, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	desc := tui.Describe(chosen, a.appImage(cmd.Context(), chosen))
	if err := a.client().SetPresence(cmd.Context(), desc); err != nil {
		return daemonError(err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "showing %s\n", chosen.Name)
	return err
}

// appImage returns an image URL for the app's icon, or "" when there is no
// icon or uploads are disabled.
func (a *app) appImage(ctx context.Context, chosen apps.App) string {
	if !a.cfg.Images.Upload {
		return ""
	}
	png, err := a.icons.Icon(ctx, chosen)
	if err != nil {
		if !errors.Is(err, apps.ErrNoIcon) {
			a.log.Warn("reading app icon", "app", chosen.Name, "error", err)
		}
		return ""
	}
	res := a.uploader().Upload(ctx, imagehost.DataURI("image/png", png))
	if !res.Success || res.Fallback {
		// An inline data URI is too long for Discord's image field.
		a.log.Warn("app icon not uploaded", "app", chosen.Name, "error", res.Error)
		return ""
	}
	return res.URL
}

