package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sumithjoshi99/medconnect/internal/bus"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"github.com/sumithjoshi99/medconnect/internal/daemon"
	"github.com/sumithjoshi99/medconnect/internal/live"
	"github.com/sumithjoshi99/medconnect/internal/lock"
	"github.com/sumithjoshi99/medconnect/internal/notify"
	"github.com/sumithjoshi99/medconnect/internal/shell"
	"github.com/sumithjoshi99/medconnect/internal/store"
	"github.com/sumithjoshi99/medconnect/internal/tui"
	"github.com/sumithjoshi99/medconnect/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	configFlag := flag.String("config", "", "config file (default ~/.medconnect/config.toml)")
	flag.Parse()

	if err := run(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	app := tui.New(nil)

	var (
		sh       *shell.Shell
		d        *notify.Dispatcher
		listener *live.Listener
		bridge   *wa.Bridge
		db       *store.DB
		b        *bus.Bus
		cfg      *config.Config
		logger   *zap.Logger
	)
	engine := fx.New(
		daemon.Module(daemon.Params{
			ConfigPath:  configPath,
			FileLogOnly: true,
			Sinks: daemon.Sinks{
				Desktop: app,
				Sound:   app,
				Focuser: app,
				Ask:     app.AskPermission,
			},
		}),
		fx.Populate(&sh, &d, &listener, &bridge, &db, &b, &cfg, &logger),
		fx.NopLogger,
	)
	if err := engine.Err(); err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			return fmt.Errorf("an engine is already running (pid %d); check it with medconnectctl status", held.PID)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := engine.Start(startCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	app.Bind(tui.Engine{
		Shell:      sh,
		Dispatcher: d,
		Listener:   listener,
		Bridge:     bridge,
		Messages:   db,
		Bus:        b,
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     logger,
	})
	runErr := app.Run(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := engine.Stop(stopCtx); err != nil {
		logger.Warn("engine stop", zap.Error(err))
	}
	return runErr
}
