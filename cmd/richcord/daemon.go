package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	rootpkg "tools.zach/dev/richcord"
	"tools.zach/dev/richcord/internal/bridge"
	"tools.zach/dev/richcord/internal/config"
	"tools.zach/dev/richcord/internal/control"
	"tools.zach/dev/richcord/internal/discord"
	"tools.zach/dev/richcord/internal/logger"
	"tools.zach/dev/richcord/internal/paths"
	"tools.zach/dev/richcord/internal/presence"
	"tools.zach/dev/richcord/internal/session"
	"tools.zach/dev/richcord/internal/watch"
)

func (a *app) daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the presence daemon in the foreground",
		Long:  "Run the daemon that owns the Discord connection. It serves the control API other commands talk to and reconnects when Discord restarts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()
			return a.runDaemon(ctx, cmd.ErrOrStderr())
		},
	}
}

// runDaemon prepares the data directory, logging and the PID lock, then
// runs the daemon until ctx is done.
func (a *app) runDaemon(ctx context.Context, stderr io.Writer) error {
	if err := a.dir.Ensure(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if alive, pid := checkStalePID(a.dir); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	seeded, err := seedConfig(a.dir)
	if err != nil {
		a.log.Warn("failed to write default config", "error", err)
	}
	if seeded {
		if a.cfg, err = config.Load(a.dir.Root); err != nil {
			return err
		}
	}

	level := new(slog.LevelVar)
	level.Set(logger.ParseLevel(a.cfg.Log.Level))
	var console io.Writer
	if a.verbose {
		console = stderr
	}
	log, closer, err := logger.NewLogger(a.dir.Log(), level, a.cfg.Log.MaxSizeMB, console)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	token := pidToken()
	pidFile, err := writePID(a.dir, token)
	if err != nil {
		return err
	}
	defer removePID(a.dir, token, pidFile)

	d := &daemon{
		dir:     a.dir,
		cfg:     a.cfg,
		level:   level,
		log:     log,
		newConn: a.newConn,
		version: resolveVersion(),
	}
	if a.checkOnBoot {
		d.checkUpdate = func(ctx context.Context) { a.checker().Notify(ctx, d.version) }
	}
	return d.run(ctx)
}

// seedConfig writes the annotated default config when none exists.
func seedConfig(dir paths.DataDir) (bool, error) {
	if _, err := os.Stat(dir.Config()); !os.IsNotExist(err) {
		return false, nil
	}
	if err := os.WriteFile(dir.Config(), rootpkg.DefaultConfigTOML, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

type daemon struct {
	dir         paths.DataDir
	cfg         *config.Config
	level       *slog.LevelVar
	log         *slog.Logger
	newConn     func() session.Conn
	version     string
	checkUpdate func(ctx context.Context)
}

// run serves the control API, follows config changes and, when configured,
// connects at startup. On return the session has been disconnected.
func (d *daemon) run(ctx context.Context) error {
	hub := bridge.NewHub(d.log)
	mgr := session.NewManager(sessionOptions(d.cfg, hub, d.log, d.newConn))
	br := bridge.New(mgr, hub, d.log)

	ln, err := control.Listen(controlAddress(d.dir, d.cfg))
	if err != nil {
		return err
	}
	w, err := watch.New(d.dir.Config(), d.log)
	if err != nil {
		ln.Close()
		return err
	}
	defer w.Close()

	d.log.Info("richcord starting", "version", d.version, "data_dir", d.dir.Root, "config_polling", w.Polling())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return control.NewServer(br, d.log).Serve(gctx, ln)
	})
	g.Go(func() error {
		d.followConfig(gctx, w, br)
		return nil
	})
	if id := d.cfg.Discord.ClientID; d.cfg.Discord.AutoConnect && d.cfg.Discord.HasClientID() {
		g.Go(func() error {
			if r := br.Initialize(gctx, id); !r.Success {
				d.log.Warn("auto connect failed", "client_id", id, "error", r.Err())
			}
			return nil
		})
	}
	if d.checkUpdate != nil {
		g.Go(func() error {
			d.checkUpdate(gctx)
			return nil
		})
	}

	err = g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	br.Disconnect(stopCtx)
	d.log.Info("richcord stopped")
	return err
}

// followConfig applies config edits: the log level takes effect at once, and
// a new client ID re-initializes the session when one is active or auto
// connect is on. Invalid edits are logged and skipped.
func (d *daemon) followConfig(ctx context.Context, w *watch.Watcher, br *bridge.Bridge) {
	current := d.cfg.Discord.ClientID
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Events():
		}

		cfg, err := config.Load(d.dir.Root)
		if err != nil {
			d.log.Warn("ignoring config change", "error", err)
			continue
		}
		d.level.Set(logger.ParseLevel(cfg.Log.Level))

		if cfg.Discord.ClientID == current {
			continue
		}
		d.log.Info("discord client id changed", "old", current, "new", cfg.Discord.ClientID)
		current = cfg.Discord.ClientID
		if !cfg.Discord.HasClientID() {
			continue
		}
		if br.Status().ClientID == "" && !cfg.Discord.AutoConnect {
			continue
		}
		if r := br.Initialize(ctx, current); !r.Success {
			d.log.Warn("reconnect with new client id failed", "client_id", current, "error", r.Err())
		}
	}
}

// sessionOptions maps the config onto the session layer.
func sessionOptions(cfg *config.Config, n session.Notifier, log *slog.Logger, newConn func() session.Conn) session.Options {
	if newConn == nil {
		newConn = func() session.Conn { return discord.NewClient() }
	}
	return session.Options{
		MaxAttempts:    cfg.Connection.MaxAttempts,
		RetryDelay:     cfg.Connection.RetryDelay(),
		RetryMaxDelay:  cfg.Connection.RetryMaxDelay(),
		ReconnectDelay: cfg.Connection.ReconnectDelay(),
		CommandTimeout: cfg.Connection.CommandTimeout(),
		UpdateLimit:    rate.Every(cfg.Presence.UpdateInterval()),
		UpdateBurst:    cfg.Presence.UpdatesPerWindow,
		Builder: presence.Builder{
			DefaultDetails: cfg.Presence.DefaultDetails,
			DefaultState:   cfg.Presence.DefaultState,
		},
		NewConn:  newConn,
		Notifier: n,
		Logger:   log,
	}
}
