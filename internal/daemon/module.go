// Package daemon assembles the engine with fx: store, inbox registry,
// shell, live listener, notification dispatcher, ingestion, the optional
// WhatsApp bridge and the gRPC health endpoint.
package daemon

import (
	"context"
	"os"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"github.com/sumithjoshi99/medconnect/internal/inbox"
	"github.com/sumithjoshi99/medconnect/internal/ingest"
	"github.com/sumithjoshi99/medconnect/internal/live"
	"github.com/sumithjoshi99/medconnect/internal/lock"
	"github.com/sumithjoshi99/medconnect/internal/logging"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/push"
	"github.com/sumithjoshi99/medconnect/internal/shell"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params configures the fx module.
type Params struct {
	ConfigPath  string
	SocketPath  string // optional override for testing; empty = derived from data_dir
	FileLogOnly bool   // keep stderr free for a terminal UI
	Sinks       Sinks
}

// Sinks are the notification outputs a front end supplies. Nil fields
// fall back to the headless log sinks.
type Sinks struct {
	Desktop notify.DesktopNotifier
	Sound   notify.SoundPlayer
	Focuser notify.WindowFocuser
	Ask     func(ctx context.Context) (bool, error)
}

// Module returns the fx module for the engine, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRegistry,
			provideDispatcher,
			provideShell,
			provideSource,
			provideListener,
			provideEngine,
			provideBridge,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.FileLogOnly {
		return logging.NewFileOnly(cfg.LogPath(), cfg.LogLevel)
	}
	return logging.New(cfg.LogPath(), cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data directory lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data directory lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath()))
	return db, nil
}

func provideRegistry(db *store.DB, logger *zap.Logger) *inbox.Registry {
	return inbox.NewRegistry(db, logger)
}

func provideDispatcher(p Params, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *notify.Dispatcher {
	path := p.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	opts := notify.Options{
		Toaster:      notify.LogToaster{Logger: logger, Bus: b},
		Desktop:      notify.LogDesktop{Logger: logger},
		Permission:   notify.NewConfigPermission(cfg, path, p.Sinks.Ask),
		DismissAfter: cfg.Notifications.DismissAfter.Duration,
		Logger:       logger,
	}
	if p.Sinks.Desktop != nil {
		opts.Desktop = p.Sinks.Desktop
	}
	if p.Sinks.Focuser != nil {
		opts.Focuser = p.Sinks.Focuser
	}
	if cfg.Notifications.Sound {
		opts.Sound = notify.BellPlayer{W: os.Stderr}
		if p.Sinks.Sound != nil {
			opts.Sound = p.Sinks.Sound
		}
	}
	return notify.NewDispatcher(opts)
}

func provideShell(db *store.DB, reg *inbox.Registry, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *shell.Shell {
	return shell.New(shell.Options{
		Store:    db,
		Registry: reg,
		Toaster:  notify.LogToaster{Logger: logger, Bus: b},
		Bus:      b,
		BadgeCap: cfg.Badge.Cap,
		Logger:   logger,
	})
}

func provideSource(cfg *config.Config, b *bus.Bus, logger *zap.Logger) push.Source {
	if cfg.Push.Mode == config.PushWebSocket {
		logger.Info("live updates from websocket", zap.String("url", cfg.Push.URL))
		return &push.WebSocketSource{
			URL:         cfg.Push.URL,
			Token:       cfg.Push.Token,
			PingTimeout: cfg.Push.PingTimeout.Duration,
			Logger:      logger,
		}
	}
	return push.NewBusSource(b)
}

func provideListener(src push.Source, db *store.DB, reg *inbox.Registry, d *notify.Dispatcher, sh *shell.Shell, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *live.Listener {
	return live.NewListener(live.Options{
		Source:     src,
		Patients:   db,
		Inboxes:    reg,
		Notifier:   d,
		Recomputer: sh,
		Policy: live.Policy{
			Auto:           cfg.Reconnect.Auto,
			InitialBackoff: cfg.Reconnect.InitialBackoff.Duration,
			MaxBackoff:     cfg.Reconnect.MaxBackoff.Duration,
			MaxAttempts:    cfg.Reconnect.MaxAttempts,
		},
		Bus:    b,
		Logger: logger,
	})
}

func provideEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, logger)
}

// provideBridge returns nil when the WhatsApp inbox is disabled.
func provideBridge(cfg *config.Config, db *store.DB, b *bus.Bus, sh *shell.Shell, logger *zap.Logger) (*wa.Bridge, error) {
	if !cfg.WhatsApp.Enabled {
		return nil, nil
	}
	adapter, err := wa.NewAdapter(context.Background(), cfg.WASessionPath(), cfg.WhatsApp.DeviceName, logger)
	if err != nil {
		return nil, err
	}
	br := wa.NewBridge(adapter, db, b, logger)
	br.OnRegistered = sh.Load
	return br, nil
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, sh *shell.Shell, d *notify.Dispatcher, listener *live.Listener, engine *ingest.Engine, bridge *wa.Bridge, b *bus.Bus, logger *zap.Logger) {
	d.SetNavigator(sh)
	reporter := newHealthReporter(srv.Health(), b, bridge != nil, logger)
	batches := newBatchRelay(b, sh)

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())

			reporter.Start(runCtx)
			batches.Start(runCtx)

			// Ingestion subscribes to wa.* before the bridge can publish.
			engine.Start(runCtx)

			sh.Load(ctx)
			go sh.Run(runCtx)

			if err := listener.Start(runCtx); err != nil {
				logger.Warn("live subscription not established, following reconnect policy", zap.Error(err))
			}

			if bridge != nil {
				if err := bridge.Start(runCtx); err != nil {
					logger.Error("WhatsApp bridge start failed", zap.Error(err))
				}
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if bridge != nil {
				bridge.Stop()
			}
			listener.Stop()
			engine.Stop()
			if cancel != nil {
				cancel()
			}
			reporter.Wait()
			batches.Wait()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
