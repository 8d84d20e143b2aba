// Package ctl implements medconnectctl: engine health, WhatsApp pairing
// and inbox seeding.
package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/sumithjoshi99/medconnect/internal/config"
	"github.com/sumithjoshi99/medconnect/internal/lock"
	"github.com/sumithjoshi99/medconnect/internal/store"
)

// ErrNotServing is returned by status when a checked service is down.
var ErrNotServing = errors.New("engine is not fully serving")

type rootFlags struct {
	Config string
	JSON   bool
}

// Execute runs the command line args, writing results to out.
func Execute(ctx context.Context, args []string, out io.Writer) error {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "medconnectctl",
		Short:         "Operate the medconnect conversation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.Config, "config", "", "config file (default ~/.medconnect/config.toml)")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "print JSON")

	root.AddCommand(
		newStatusCmd(flags),
		newPairCmd(flags),
		newInboxCmd(flags),
	)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	var held *lock.HeldError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotServing):
		return 2
	case errors.As(err, &held):
		return 3
	default:
		return 1
	}
}

func (f *rootFlags) configPath() string {
	if f.Config == "" {
		return config.DefaultPath()
	}
	return f.Config
}

func (f *rootFlags) loadConfig() (*config.Config, error) {
	return config.LoadOrDefault(f.configPath())
}

// openStore takes the data directory lock, so it fails while an engine
// runs. The returned func closes the store and releases the lock.
func openStore(cfg *config.Config) (*store.DB, func(), error) {
	lk, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			return nil, nil, fmt.Errorf("stop the engine first: %w", err)
		}
		return nil, nil, err
	}
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		_ = lk.Release()
		return nil, nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = lk.Release()
		return nil, nil, err
	}
	return db, func() {
		_ = db.Close()
		_ = lk.Release()
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
