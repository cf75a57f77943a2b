package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hkmacro/internal/api"
	"hkmacro/internal/autostart"
	"hkmacro/internal/config"
	"hkmacro/internal/engine"
	"hkmacro/internal/executor"
	"hkmacro/internal/history"
	"hkmacro/internal/hotkey"
	"hkmacro/internal/input"
	"hkmacro/internal/osutils"
	"hkmacro/internal/tray"
	"hkmacro/internal/ui"
)

func runCmd() *cobra.Command {
	var noTray bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hotkey daemon",
		Long: `Bind every macro hotkey and the stop hotkey, and run macros when they are
pressed. The HTTP API and the tray icon start according to the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), cmd.Root().Version, noTray)
		},
	}
	cmd.Flags().BoolVar(&noTray, "no-tray", false, "do not show the tray icon")
	return cmd
}

func runDaemon(ctx context.Context, version string, noTray bool) error {
	log.Println("hkmacro daemon starting...")
	osutils.WarnIfUnprivileged()

	injector, err := input.NewInjector()
	if err != nil {
		log.Printf("Warning: input injection unavailable: %v", err)
		injector = nil
	}

	cfgMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := cfgMgr.Get()

	opts := engine.Options{Injector: injector}
	mgr := hotkey.NewManager()
	if err := mgr.Start(); err != nil {
		log.Printf("Warning: global hotkeys unavailable: %v", err)
	} else {
		defer mgr.Stop()
		opts.Observer = mgr
		if cfg.Macros.Enabled && cfg.Macros.GlobalHotkeyEnabled {
			opts.Backend = mgr
			opts.StopHotkey = cfg.Macros.StopHotkey
		}
	}
	if opts.Backend == nil {
		log.Println("Hotkeys are disabled, macros run only from the API or tray.")
	}

	s, err := newSession(cfgMgr, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, b := range s.engine.Dispatcher().Bindings() {
		if !b.Registered {
			log.Printf("Warning: hotkey %s could not be registered", b.Hotkey)
		}
	}

	syncAutostart(cfg.General.StartOnBoot)
	cfgMgr.RegisterChangeCallback(func() {
		c := cfgMgr.Get()
		if err := s.engine.Load(c.Macros.SavedMacros); err != nil {
			log.Printf("Reload: keeping current macros: %v", err)
		}
		syncAutostart(c.General.StartOnBoot)
	})

	var repo *history.Repository
	if r, err := history.Open(s.cfg.HistoryPath()); err != nil {
		log.Printf("Warning: execution history disabled: %v", err)
	} else {
		repo = r
		defer repo.Close()
		events, cancel := s.engine.Subscribe(64)
		defer cancel()
		go followHistory(s.engine, repo, events)
	}

	var apiServer *api.Server
	if cfg.General.APIEnabled {
		apiServer = api.NewServer(s.engine, repo, cfg.General.APIToken, version)
		go func() {
			if err := apiServer.Start(cfg.General.APIPort); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	log.Printf("Loaded %d macros from %s", s.engine.Store().Len(), s.cfg.Path())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reloadOnHangup(ctx, cfgMgr)

	shutdown := func() {
		log.Println("Shutting down...")
		if apiServer != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := apiServer.Shutdown(sctx); err != nil {
				log.Printf("API shutdown: %v", err)
			}
		}
		if !cfg.Macros.AutoSave {
			if err := s.engine.Save(); err != nil {
				log.Printf("Failed to save macros: %v", err)
			}
		}
	}

	if noTray {
		<-ctx.Done()
		shutdown()
		return nil
	}

	t := tray.New(s.engine)
	if apiServer != nil {
		t.AddMenuItem("Open dashboard", func() {
			ui.OpenBrowser(apiServer.DashboardURL(cfg.General.APIPort))
		})
	}
	t.AddMenuItem("Open config folder", func() {
		ui.OpenBrowser(filepath.Dir(s.cfg.Path()))
	})
	t.AddSeparator()
	t.AddMenuItem("Quit", t.Stop)

	trayEvents, cancelTray := s.engine.Subscribe(64)
	defer cancelTray()
	go t.Follow(trayEvents)

	go func() {
		<-ctx.Done()
		t.Stop()
	}()

	// systray needs the main thread on macOS
	t.Run()
	shutdown()
	return nil
}

// followHistory records every finished run until events is closed.
func followHistory(eng *engine.Engine, repo *history.Repository, events <-chan executor.Event) {
	for ev := range events {
		if ev.Type != executor.EventFinished {
			continue
		}
		entry := history.Entry{
			ID:         ev.RunID,
			MacroID:    ev.MacroID,
			MacroName:  ev.MacroName,
			Status:     ev.Status.String(),
			StartedAt:  ev.Time,
			FinishedAt: ev.Time,
			Error:      ev.Error,
		}
		if info, ok := eng.Current(); ok && info.RunID == ev.RunID {
			entry = history.FromInfo(info)
		}
		if err := repo.Record(context.Background(), entry); err != nil {
			log.Printf("History: %v", err)
		}
	}
}

// reloadOnHangup re-reads the config file on SIGHUP, picking up edits made
// with the other commands while the daemon runs.
func reloadOnHangup(ctx context.Context, cfgMgr *config.Manager) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-hup:
			log.Printf("Reloading %s", cfgMgr.Path())
			if err := cfgMgr.Load(); err != nil {
				log.Printf("Reload failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func syncAutostart(want bool) {
	if want == autostart.IsEnabled() {
		return
	}
	var err error
	if want {
		err = autostart.Enable(autostartArgs()...)
	} else {
		err = autostart.Disable()
	}
	if err != nil {
		log.Printf("Warning: failed to update start on boot: %v", err)
	}
}
