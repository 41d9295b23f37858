package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tools.zach/dev/richcord/internal/apps"
	"tools.zach/dev/richcord/internal/config"
	"tools.zach/dev/richcord/internal/control"
	"tools.zach/dev/richcord/internal/imagehost"
	"tools.zach/dev/richcord/internal/logger"
	"tools.zach/dev/richcord/internal/paths"
	"tools.zach/dev/richcord/internal/profiles"
	"tools.zach/dev/richcord/internal/session"
	"tools.zach/dev/richcord/internal/tui"
	"tools.zach/dev/richcord/internal/update"
)

// app carries what every command needs once flags are parsed. The function
// fields are the seams tests replace.
type app struct {
	dataDir string
	verbose bool

	dir paths.DataDir
	cfg *config.Config
	log *slog.Logger

	newConn     func() session.Conn
	newLister   func(cfg *config.Config) apps.Lister
	icons       apps.IconProvider
	pick        func(ctx context.Context, list []apps.App, in io.Reader, out io.Writer) (apps.App, bool, error)
	isTerminal  func() bool
	checker     func() *update.Checker
	checkOnBoot bool
}

func newApp() *app {
	return &app{
		newLister: func(cfg *config.Config) apps.Lister {
			return apps.NewShellLister(cfg.Apps.Ignore, cfg.Apps.CacheTTL())
		},
		icons:       apps.NewShellIcons(),
		pick:        tui.Pick,
		isTerminal:  func() bool { return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) },
		checker:     update.NewChecker,
		checkOnBoot: true,
	}
}

func newRootCmd() *cobra.Command {
	return newApp().rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           paths.BinaryName,
		Short:         "Discord Rich Presence from the command line",
		Long:          "richcord keeps a Discord Rich Presence session alive in a background daemon and lets you set, clear and inspect it from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", paths.Default().Root, "data directory for config, profiles and logs")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		a.daemonCmd(),
		a.connectCmd(),
		a.disconnectCmd(),
		a.statusCmd(),
		a.watchCmd(),
		a.setCmd(),
		a.clearCmd(),
		a.appsCmd(),
		a.profileCmd(),
		a.logsCmd(),
		a.versionCmd(),
	)
	return root
}

// setup loads the config and installs a console logger. CLI commands log at
// warn unless -v is given.
func (a *app) setup(cmd *cobra.Command) error {
	a.dir = paths.DataDir{Root: a.dataDir}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = logger.NewConsole(cmd.ErrOrStderr(), level)
	slog.SetDefault(a.log)

	cfg, err := config.Load(a.dir.Root)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func controlAddress(dir paths.DataDir, cfg *config.Config) string {
	if cfg.Control.Socket != "" {
		return cfg.Control.Socket
	}
	return control.DefaultAddress(dir.Root)
}

func (a *app) client() *control.Client {
	return control.NewClient(controlAddress(a.dir, a.cfg))
}

func (a *app) uploader() *imagehost.Uploader {
	return imagehost.New(a.cfg.Images.ImgurClientID, a.log)
}

func (a *app) profiles() *profiles.Store {
	return profiles.NewStore(a.dir.Profiles())
}

// daemonError turns a dial failure into a hint to start the daemon.
func daemonError(err error) error {
	if errors.Is(err, control.ErrDaemonNotRunning) {
		return fmt.Errorf("%w (start it with `%s daemon`)", err, paths.BinaryName)
	}
	return err
}
