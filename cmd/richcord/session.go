package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tools.zach/dev/richcord/internal/config"
	"tools.zach/dev/richcord/internal/session"
)

func (a *app) connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect [client-id]",
		Short: "Connect the daemon to Discord",
		Long:  "Connect the daemon's session as the given Discord application. Without an argument discord.client_id from the config is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if a.cfg.Discord.HasClientID() {
				id = a.cfg.Discord.ClientID
			}
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			if id == "" {
				return fmt.Errorf("no client id given and discord.client_id is not set in %s", a.dir.Config())
			}
			if !config.ValidClientID(id) {
				return fmt.Errorf("invalid client id %q: must be a 17-20 digit application ID", id)
			}
			if err := a.client().Initialize(cmd.Context(), id); err != nil {
				return daemonError(err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "connected as %s\n", id)
			return err
		},
	}
}

func (a *app) disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Clear the presence and disconnect from Discord",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().Disconnect(cmd.Context()); err != nil {
				return daemonError(err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			return err
		},
	}
}

func (a *app) setCmd() *cobra.Command {
	var flags presenceFlags
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Show a presence",
		Example: `  richcord set -d "Writing docs" -s "README.md" --elapsed
  richcord set --file focus.yaml --large-image ./logo.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			desc, err := flags.description(cmd)
			if err != nil {
				return err
			}
			if err := a.resolveImages(cmd.Context(), &desc); err != nil {
				return err
			}
			if err := a.client().SetPresence(cmd.Context(), desc); err != nil {
				return daemonError(err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "presence updated")
			return err
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the presence but stay connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().ClearPresence(cmd.Context()); err != nil {
				return daemonError(err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "presence cleared")
			return err
		},
	}
}

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(10)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func (a *app) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().Status(cmd.Context())
			if err != nil {
				return daemonError(err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), renderStatus(st, time.Now()))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func renderStatus(st session.Status, now time.Time) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}

	state := st.State.String()
	switch st.State {
	case session.StateConnected:
		state = goodStyle.Render(state)
		if !st.Since.IsZero() {
			state += dimStyle.Render(" since " + humanize.RelTime(st.Since, now, "ago", "from now"))
		}
	case session.StateConnecting:
		state = warnStyle.Render(state)
		if st.Attempts > 0 {
			state += dimStyle.Render(fmt.Sprintf(" (%d failed %s)", st.Attempts, plural(st.Attempts, "attempt")))
		}
	default:
		if st.ClientID != "" {
			state = warnStyle.Render("reconnecting")
		}
	}
	row("State", state)

	if st.ClientID != "" {
		row("Client", st.ClientID)
	}
	if p := st.Presence; p != nil {
		row("Details", orDash(p.Details))
		row("State", orDash(p.State))
		if p.LargeImageKey != "" {
			row("Image", truncate(p.LargeImageKey, 60))
		}
	} else {
		row("Presence", dimStyle.Render("none"))
	}
	row("Started", humanize.RelTime(st.SessionStart, now, "ago", "from now"))
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func orDash(s string) string {
	if s == "" {
		return dimStyle.Render("-")
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ///////////////////////////////////////////////
// Watch
// ///////////////////////////////////////////////

func (a *app) watchCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream session events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()
			return a.watchEvents(ctx, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per event")
	return cmd
}

func (a *app) watchEvents(ctx context.Context, out io.Writer, asJSON bool) error {
	enc := json.NewEncoder(out)
	err := a.client().Events(ctx, func(ev session.Event) error {
		if asJSON {
			return enc.Encode(ev)
		}
		_, err := fmt.Fprintln(out, formatEvent(ev))
		return err
	})
	return daemonError(err)
}

func formatEvent(ev session.Event) string {
	line := ev.Time.Local().Format("15:04:05") + " " + string(ev.Kind)
	if ev.ClientID != "" {
		line += " client=" + ev.ClientID
	}
	if ev.Activity != nil {
		line += fmt.Sprintf(" details=%q state=%q", ev.Activity.Details, ev.Activity.State)
	}
	if ev.Error != nil {
		line += " error=" + ev.Error.Error()
	}
	return line
}
